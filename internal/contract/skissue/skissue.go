// Package skissue implements servicekey issuance: signing
// (pubkey, settlement_open, settlement_close) triples on activation.
// Stateless with respect to the durable store.
package skissue

import (
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/sign"
)

// Activate issues an SKContract for the contract server's own pubkey,
// opening at now+servicekeyDuration and closing submissionWindow
// seconds after that.
func Activate(signer *sign.Signer, now, servicekeyDuration, submissionWindow int64) model.SKContract {
	open := now + servicekeyDuration
	close := open + submissionWindow
	c := model.SKContract{SettlementOpen: open, SettlementClose: close}
	signer.SignContract(&c)
	return c
}
