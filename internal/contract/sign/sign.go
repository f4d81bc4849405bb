// Package sign implements the canonical digest and Ed25519 signing used to
// authenticate every state-changing request: detached signatures over a
// deterministic string encoding of a record's fields.
package sign

import (
	"crypto/ed25519"
	"errors"

	"wireskip-contract/internal/contract/b64e"
	"wireskip-contract/internal/contract/model"
)

// ErrInvalidSignature is returned when a signature does not verify
// against a record's declared public key and canonical digest.
var ErrInvalidSignature = errors.New("invalid signature")

// Digestible is any record type that knows how to build its own
// canonical digest string.
type Digestible interface {
	Digest() string
}

// Signer holds the contract server's own Ed25519 keypair, used to sign
// SKContracts, directory responses and Pofs.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner wraps an existing Ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() b64e.PubKey { return b64e.PubKey(s.pub) }

// Sign signs the given digest string with the signer's private key.
func (s *Signer) Sign(digest string) b64e.Sig {
	return b64e.Sig(ed25519.Sign(s.priv, []byte(digest)))
}

// SignContract signs an SKContract, filling in PublicKey and Signature.
func (s *Signer) SignContract(c *model.SKContract) {
	c.PublicKey = s.PublicKey()
	c.Signature = s.Sign(c.Digest())
}

// SignPof signs a Pof, filling in Signature.
func (s *Signer) SignPof(p *model.Pof) {
	p.Signature = s.Sign(p.Digest())
}

// SignBytes signs raw bytes (used for header-signed requests and the
// directory response body).
func (s *Signer) SignBytes(msg []byte) b64e.Sig {
	return b64e.Sig(ed25519.Sign(s.priv, msg))
}

// VerifyDigest verifies sig over digest using pub.
func VerifyDigest(pub b64e.PubKey, digest string, sig b64e.Sig) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("malformed public key")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(digest), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBytes verifies sig over raw bytes using pub.
func VerifyBytes(pub b64e.PubKey, msg []byte, sig b64e.Sig) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("malformed public key")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySharetoken verifies a share token's own signature and its
// embedded contract's signature.
func VerifySharetoken(st *model.Sharetoken) error {
	if err := VerifyDigest(st.Contract.PublicKey, st.Contract.Digest(), st.Contract.Signature); err != nil {
		return err
	}
	return VerifyDigest(st.PublicKey, st.Digest(), st.Signature)
}
