package registry

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/assayhq/assay/internal/canon"
	"github.com/assayhq/assay/internal/jsonstrict"
	"github.com/assayhq/assay/internal/netutil"
	"github.com/assayhq/assay/internal/trust"
)

// FetchKeysManifest fetches GET /keys, a DSSE-signed keys manifest, and
// applies its entries to the client's trust store after verifying the
// envelope against a key already present in the store (normally a
// pinned root). The manifest's own canonical digest is its content hash.
func (c *Client) FetchKeysManifest(ctx context.Context) error {
	resp, err := c.doWithRetry(ctx, http.MethodGet, "/keys", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &netutil.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var raw struct {
		Manifest  json.RawMessage    `json:"manifest"`
		Signature trust.DSSEEnvelope `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("registry: decoding keys manifest envelope: %w", err)
	}

	v, err := jsonstrict.Parse(raw.Manifest)
	if err != nil {
		return fmt.Errorf("registry: keys manifest body failed strict parse: %w", err)
	}
	digest, err := canon.Digest(v)
	if err != nil {
		return fmt.Errorf("registry: canonicalizing keys manifest: %w", err)
	}

	now := c.now()
	if err := c.Trust.VerifyContent(raw.Signature, digest, now); err != nil {
		return fmt.Errorf("registry: keys manifest signature did not verify: %w", err)
	}

	var wire keysManifestWire
	if err := json.Unmarshal(raw.Manifest, &wire); err != nil {
		return fmt.Errorf("registry: keys manifest does not match schema: %w", err)
	}

	keys := make([]trust.Key, 0, len(wire.Keys))
	for _, k := range wire.Keys {
		pub, err := base64.StdEncoding.DecodeString(k.PublicKey)
		if err != nil {
			return fmt.Errorf("registry: key %s has malformed public key: %w", k.ID, err)
		}
		notBefore, err := time.Parse(time.RFC3339, k.NotBefore)
		if err != nil {
			return fmt.Errorf("registry: key %s has malformed not_before: %w", k.ID, err)
		}
		expiresAt, err := time.Parse(time.RFC3339, k.ExpiresAt)
		if err != nil {
			return fmt.Errorf("registry: key %s has malformed expires_at: %w", k.ID, err)
		}
		keys = append(keys, trust.Key{
			ID:        k.ID,
			Algorithm: k.Algorithm,
			Public:    ed25519.PublicKey(pub),
			NotBefore: notBefore,
			ExpiresAt: expiresAt,
			Revoked:   k.Revoked,
		})
	}

	return c.Trust.ApplyManifest(keys)
}
