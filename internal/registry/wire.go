package registry

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/assayhq/assay/internal/trust"
)

func parseDSSEEnvelope(body []byte) (trust.DSSEEnvelope, error) {
	var env trust.DSSEEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return trust.DSSEEnvelope{}, fmt.Errorf("registry: malformed DSSE envelope: %w", err)
	}
	return env, nil
}

func decodeVersionsBody(r io.Reader) ([]string, error) {
	var out struct {
		Versions []string `json:"versions"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("registry: decoding versions response: %w", err)
	}
	return out.Versions, nil
}

type keysManifestWire struct {
	Keys []keyWire `json:"keys"`
}

type keyWire struct {
	ID        string `json:"id"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"` // base64 raw Ed25519 public key
	NotBefore string `json:"not_before"`
	ExpiresAt string `json:"expires_at"`
	Revoked   bool   `json:"revoked"`
}
