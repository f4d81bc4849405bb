package accesskey

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"wireskip-contract/internal/contract/sign"
)

func TestIssueProducesDistinctSignedNonces(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer := sign.NewSigner(priv)

	pofs, err := Issue(signer, 1000, "standard", 5, 600)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(pofs) != 5 {
		t.Fatalf("want 5 pofs, got %d", len(pofs))
	}

	seen := make(map[string]bool)
	for _, p := range pofs {
		if p.Type != "standard" {
			t.Fatalf("unexpected type %q", p.Type)
		}
		if p.Expiration != 1600 {
			t.Fatalf("want expiration 1600, got %d", p.Expiration)
		}
		if len(p.Nonce) != nonceLength {
			t.Fatalf("want nonce length %d, got %d", nonceLength, len(p.Nonce))
		}
		if seen[p.Nonce] {
			t.Fatalf("duplicate nonce %q", p.Nonce)
		}
		seen[p.Nonce] = true
		if err := sign.VerifyDigest(signer.PublicKey(), p.Digest(), p.Signature); err != nil {
			t.Fatalf("VerifyDigest: %v", err)
		}
	}
}

func TestIssueZeroQuantity(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer := sign.NewSigner(priv)

	pofs, err := Issue(signer, 1000, "standard", 0, 600)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(pofs) != 0 {
		t.Fatalf("want 0 pofs, got %d", len(pofs))
	}
}
