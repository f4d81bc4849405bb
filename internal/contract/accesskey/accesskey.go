// Package accesskey issues proof-of-funding nonces (Pofs): stateless
// signing of a (type, expiration, nonce) triple, batched into an
// Accesskey response.
package accesskey

import (
	"crypto/rand"
	"math/big"

	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/sign"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const nonceLength = 18

// mkNonce returns an 18-character alphanumeric nonce.
func mkNonce() (string, error) {
	b := make([]byte, nonceLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(nonceAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = nonceAlphabet[n.Int64()]
	}
	return string(b), nil
}

// Issue signs quantity Pofs of pofType, each valid for duration seconds
// from now.
func Issue(signer *sign.Signer, now int64, pofType string, quantity uint64, duration int64) ([]model.Pof, error) {
	pofs := make([]model.Pof, 0, quantity)
	for i := uint64(0); i < quantity; i++ {
		nonce, err := mkNonce()
		if err != nil {
			return nil, err
		}
		p := model.Pof{Type: pofType, Nonce: nonce, Expiration: now + duration}
		signer.SignPof(&p)
		pofs = append(pofs, p)
	}
	return pofs, nil
}
