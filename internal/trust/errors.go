package trust

import "errors"

// ErrKeyNotTrusted is returned when a keyid is not known to the store at
// all (spec.md §4.6: "An unknown key ID is rejected... KeyNotTrusted").
var ErrKeyNotTrusted = errors.New("trust: KeyNotTrusted")

// ErrSignatureInvalid is returned when no signature on a DSSE envelope
// verifies against any trusted, usable key.
var ErrSignatureInvalid = errors.New("trust: SignatureInvalid")
