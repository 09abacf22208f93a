package trust

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/assayhq/assay/internal/canon"
	"github.com/assayhq/assay/internal/jsonstrict"
)

// DSSESignature is one signature entry on a DSSEEnvelope.
type DSSESignature struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"` // base64-encoded
}

// DSSEEnvelope is a Dead Simple Signing Envelope, modeled on
// mcptrust's SignatureHeader/SignatureEnvelope pattern (a small typed
// header plus a versioned payload) but generalized to DSSE's actual
// wire shape rather than the teacher's single-signature, CanonVersion-
// tagged format.
type DSSEEnvelope struct {
	PayloadType string          `json:"payloadType"`
	Payload     string          `json:"payload"` // base64-encoded
	Signatures  []DSSESignature `json:"signatures"`
}

// pae builds the DSSE pre-authentication encoding:
// "DSSEv1" SP len(payloadType) SP payloadType SP len(payload) SP payload.
func pae(payloadType string, payload []byte) []byte {
	out := []byte("DSSEv1 ")
	out = append(out, strconv.Itoa(len(payloadType))...)
	out = append(out, ' ')
	out = append(out, payloadType...)
	out = append(out, ' ')
	out = append(out, strconv.Itoa(len(payload))...)
	out = append(out, ' ')
	out = append(out, payload...)
	return out
}

// VerifyContent verifies a DSSEEnvelope against wantContentDigest (a
// "sha256:<hex>" canonical digest of the target content) and the store's
// trusted keys, following spec.md §4.6's four-step procedure exactly:
// reconstruct PAE, check the payload's own digest, try each signature in
// order, succeed on the first that verifies.
func (s *Store) VerifyContent(env DSSEEnvelope, wantContentDigest string, now time.Time) error {
	payload, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return fmt.Errorf("trust: payload is not valid base64: %w", err)
	}
	payloadValue, err := jsonstrict.Parse(payload)
	if err != nil {
		return fmt.Errorf("trust: payload failed strict parse: %w", err)
	}
	got, err := canon.Digest(payloadValue)
	if err != nil {
		return fmt.Errorf("trust: canonicalizing payload: %w", err)
	}
	if got != wantContentDigest {
		return fmt.Errorf("trust: payload digest %s does not match expected content digest %s", got, wantContentDigest)
	}

	msg := pae(env.PayloadType, payload)
	var lastErr error
	for _, sig := range env.Signatures {
		key, err := s.Verified(sig.KeyID, now)
		if err != nil {
			lastErr = err
			continue
		}
		sigBytes, err := base64.StdEncoding.DecodeString(sig.Sig)
		if err != nil {
			lastErr = fmt.Errorf("trust: signature for key %s is not valid base64: %w", sig.KeyID, err)
			continue
		}
		if ed25519.Verify(key.Public, msg, sigBytes) {
			return nil
		}
		lastErr = fmt.Errorf("trust: signature for key %s did not verify: %w", sig.KeyID, ErrSignatureInvalid)
	}
	if lastErr == nil {
		lastErr = ErrSignatureInvalid
	}
	return fmt.Errorf("trust: no signature verified: %w", lastErr)
}

// Sign produces a DSSESignature over payload using priv, for test fixture
// construction and for the (optional) local bundle-signing path.
func Sign(priv ed25519.PrivateKey, keyID, payloadType string, payload []byte) DSSESignature {
	sig := ed25519.Sign(priv, pae(payloadType, payload))
	return DSSESignature{
		KeyID: keyID,
		Sig:   base64.StdEncoding.EncodeToString(sig),
	}
}
