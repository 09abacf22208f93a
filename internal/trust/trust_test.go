package trust

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/assayhq/assay/internal/canon"
)

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("unexpected error generating key: %v", err)
	}
	return pub, priv
}

func pinnedStore(t *testing.T, pub ed25519.PublicKey, id string) *Store {
	t.Helper()
	s, err := NewStore([]Key{{
		ID:        id,
		Algorithm: "Ed25519",
		Public:    pub,
		NotBefore: time.Unix(0, 0),
		ExpiresAt: time.Unix(1<<62, 0),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewStoreRequiresNonEmptyRoots(t *testing.T) {
	if _, err := NewStore(nil); err == nil {
		t.Fatalf("expected error for empty pinned root set")
	}
}

func TestVerifyContentSucceedsWithValidSignature(t *testing.T) {
	pub, priv := genKey(t)
	store := pinnedStore(t, pub, "sha256:root1")

	payload := []byte(`{"a":1}`)
	digest := canon.DigestBytes(payload)
	env := DSSEEnvelope{
		PayloadType: "application/vnd.assay.pack+json",
		Payload:     base64.StdEncoding.EncodeToString(payload),
		Signatures:  []DSSESignature{Sign(priv, "sha256:root1", "application/vnd.assay.pack+json", payload)},
	}
	if err := store.VerifyContent(env, digest, time.Now()); err != nil {
		t.Fatalf("unexpected verify failure: %v", err)
	}
}

func TestVerifyContentRejectsBitFlippedSignature(t *testing.T) {
	pub, priv := genKey(t)
	store := pinnedStore(t, pub, "sha256:root1")

	payload := []byte(`{"a":1}`)
	digest := canon.DigestBytes(payload)
	sig := Sign(priv, "sha256:root1", "application/vnd.assay.pack+json", payload)
	raw, _ := base64.StdEncoding.DecodeString(sig.Sig)
	raw[0] ^= 0xff
	sig.Sig = base64.StdEncoding.EncodeToString(raw)

	env := DSSEEnvelope{
		PayloadType: "application/vnd.assay.pack+json",
		Payload:     base64.StdEncoding.EncodeToString(payload),
		Signatures:  []DSSESignature{sig},
	}
	if err := store.VerifyContent(env, digest, time.Now()); err == nil {
		t.Fatalf("expected bit-flipped signature to fail verification")
	}
}

func TestVerifyContentFirstValidSignatureWins(t *testing.T) {
	pub1, priv1 := genKey(t)
	_, priv2 := genKey(t)
	store := pinnedStore(t, pub1, "sha256:root1")

	payload := []byte(`{"a":1}`)
	digest := canon.DigestBytes(payload)
	badSig := Sign(priv2, "sha256:root1", "application/vnd.assay.pack+json", payload)
	goodSig := Sign(priv1, "sha256:root1", "application/vnd.assay.pack+json", payload)

	env := DSSEEnvelope{
		PayloadType: "application/vnd.assay.pack+json",
		Payload:     base64.StdEncoding.EncodeToString(payload),
		Signatures:  []DSSESignature{badSig, goodSig},
	}
	if err := store.VerifyContent(env, digest, time.Now()); err != nil {
		t.Fatalf("expected verification to succeed via the second signature: %v", err)
	}
}

func TestApplyManifestCannotRevokePinnedRoot(t *testing.T) {
	pub, _ := genKey(t)
	store := pinnedStore(t, pub, "sha256:root1")

	err := store.ApplyManifest([]Key{{
		ID:        "sha256:root1",
		Algorithm: "Ed25519",
		Public:    pub,
		NotBefore: time.Unix(0, 0),
		ExpiresAt: time.Unix(1<<62, 0),
		Revoked:   true,
	}})
	if err == nil {
		t.Fatalf("expected brick-resistance invariant to reject revoking a pinned root")
	}
	k, _ := store.Lookup("sha256:root1")
	if k.Revoked {
		t.Fatalf("pinned root must remain unrevoked")
	}
}

func TestApplyManifestCanRevokeNonPinnedKey(t *testing.T) {
	pub, _ := genKey(t)
	store := pinnedStore(t, pub, "sha256:root1")

	otherPub, _ := genKey(t)
	if err := store.ApplyManifest([]Key{{
		ID:        "sha256:other",
		Algorithm: "Ed25519",
		Public:    otherPub,
		NotBefore: time.Unix(0, 0),
		ExpiresAt: time.Unix(1<<62, 0),
	}}); err != nil {
		t.Fatalf("unexpected error adding new key: %v", err)
	}
	if err := store.ApplyManifest([]Key{{
		ID:        "sha256:other",
		Algorithm: "Ed25519",
		Public:    otherPub,
		NotBefore: time.Unix(0, 0),
		ExpiresAt: time.Unix(1<<62, 0),
		Revoked:   true,
	}}); err != nil {
		t.Fatalf("unexpected error revoking non-pinned key: %v", err)
	}
	k, _ := store.Lookup("sha256:other")
	if !k.Revoked {
		t.Fatalf("expected non-pinned key to be revoked")
	}
}

func TestKeyOutsideValidityWindowIsUnusable(t *testing.T) {
	pub, priv := genKey(t)
	s, err := NewStore([]Key{{
		ID:        "sha256:root1",
		Algorithm: "Ed25519",
		Public:    pub,
		NotBefore: time.Now().Add(time.Hour),
		ExpiresAt: time.Now().Add(2 * time.Hour),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := []byte(`{"a":1}`)
	digest := canon.DigestBytes(payload)
	env := DSSEEnvelope{
		PayloadType: "x",
		Payload:     base64.StdEncoding.EncodeToString(payload),
		Signatures:  []DSSESignature{Sign(priv, "sha256:root1", "x", payload)},
	}
	if err := s.VerifyContent(env, digest, time.Now()); err == nil {
		t.Fatalf("expected not-yet-valid key to be rejected")
	}
}
