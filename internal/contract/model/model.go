// Package model holds the wire and on-disk record types shared by every
// contract server component: share tokens, servicekey contracts, relays,
// accesskeys and withdrawals. Field names and JSON shapes follow the
// wireskip contract protocol; numeric balances use arbitrary-precision
// decimals rather than floats.
package model

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"wireskip-contract/internal/contract/b64e"
)

// Status is the JSON error/success envelope returned by every handler.
type Status struct {
	Code int    `json:"code"`
	Desc string `json:"description"`
}

func OK() Status            { return Status{Code: 200, Desc: "OK"} }
func Err(code int, d string) Status { return Status{Code: code, Desc: d} }

// Role is an enrollment role a relay can register under.
type Role string

const (
	RoleFronting Role = "fronting"
	RoleEntropic Role = "entropic"
	RoleBacking  Role = "backing"
)

// RoleInfo tracks how many relays are enrolled under one role.
type RoleInfo struct {
	Count      int  `json:"count"`
	Restricted bool `json:"restricted"`
}

// Record adjusts the enrollment count by delta; it reports false (and
// leaves Count unchanged) if that would push Count negative, or if delta
// is positive, capacity is positive and Count would exceed capacity.
// The Restricted flag is not consulted.
func (r *RoleInfo) Record(delta int, capacity int) bool {
	next := r.Count + delta
	if next < 0 {
		return false
	}
	if delta > 0 && capacity > 0 && next > capacity {
		return false
	}
	r.Count = next
	return true
}

// Enrollment is the per-role enrollment counter set.
type Enrollment struct {
	Fronting RoleInfo `json:"fronting"`
	Entropic RoleInfo `json:"entropic"`
	Backing  RoleInfo `json:"backing"`
}

func (e *Enrollment) ForRole(r Role) *RoleInfo {
	switch r {
	case RoleFronting:
		return &e.Fronting
	case RoleEntropic:
		return &e.Entropic
	case RoleBacking:
		return &e.Backing
	default:
		return &e.Fronting
	}
}

// Relay is a single directory entry.
type Relay struct {
	PublicKey b64e.PubKey `json:"pubkey"`
	Role      Role        `json:"role"`
	Address   string      `json:"address"`
}

// SKContract is the servicekey's settlement envelope, signed by the
// contract server. Digest excludes Signature.
type SKContract struct {
	PublicKey      b64e.PubKey `json:"public_key"`
	Signature      b64e.Sig    `json:"signature"`
	SettlementOpen int64       `json:"settlement_open"`
	SettlementClose int64      `json:"settlement_close"`
}

// Digest returns the canonical digest of the contract, excluding its own
// signature field.
func (c SKContract) Digest() string {
	return strings.Join([]string{
		c.PublicKey.String(),
		strconv.FormatInt(c.SettlementOpen, 10),
		strconv.FormatInt(c.SettlementClose, 10),
	}, ":")
}

// DigestWithSig returns the contract's fields interleaved with its own
// signature -- public_key, signature, settlement_open, settlement_close
// -- this is what gets substituted into an enclosing Sharetoken's digest.
func (c SKContract) DigestWithSig() string {
	return strings.Join([]string{
		c.PublicKey.String(),
		c.Signature.String(),
		strconv.FormatInt(c.SettlementOpen, 10),
		strconv.FormatInt(c.SettlementClose, 10),
	}, ":")
}

// Sharetoken is the authenticated receipt of one service unit, signed by
// the servicekey holder.
type Sharetoken struct {
	Version     uint8       `json:"version"`
	PublicKey   b64e.PubKey `json:"public_key"`
	Timestamp   int64       `json:"timestamp"`
	RelayPubkey b64e.PubKey `json:"relay_pubkey"`
	ShareKey    string      `json:"share_key"`
	Nonce       string      `json:"nonce"`
	Signature   b64e.Sig    `json:"signature"`
	Contract    SKContract  `json:"contract"`
}

// Digest is the canonical digest of the share token, excluding its own
// Signature field but including the embedded contract's digest-with-sig.
func (s Sharetoken) Digest() string {
	return strings.Join([]string{
		strconv.Itoa(int(s.Version)),
		s.PublicKey.String(),
		strconv.FormatInt(s.Timestamp, 10),
		s.RelayPubkey.String(),
		s.ShareKey,
		s.Nonce,
		s.Contract.DigestWithSig(),
	}, ":")
}

// SigningKey returns the public key that should have produced Signature.
func (s Sharetoken) SigningKey() b64e.PubKey { return s.PublicKey }

// Pof is a signed proof-of-funding nonce.
type Pof struct {
	Type       string   `json:"type"`
	Nonce      string   `json:"nonce"`
	Expiration int64    `json:"expiration"`
	Signature  b64e.Sig `json:"signature"`
}

// Digest is the canonical digest signed over a Pof, excluding Signature.
func (p Pof) Digest() string {
	return strings.Join([]string{p.Type, strconv.FormatInt(p.Expiration, 10), p.Nonce}, ":")
}

// AccesskeyRequest asks for a batch of Pofs of one type.
type AccesskeyRequest struct {
	Type     string `json:"type"`
	Quantity uint64 `json:"quantity"`
	Duration int64  `json:"duration"`
}

// ContractRef points relays/clients at this contract server's endpoint.
type ContractRef struct {
	Endpoint  string      `json:"endpoint"`
	PublicKey b64e.PubKey `json:"public_key"`
}

// Accesskey bundles a batch of Pofs with the contract endpoint they were
// issued for.
type Accesskey struct {
	Version  string      `json:"version"`
	Contract ContractRef `json:"contract"`
	Pofs     []Pof       `json:"pofs"`
}

// ActivationRequest asks the contract server to issue a servicekey
// contract.
type ActivationRequest struct {
	PublicKey b64e.PubKey `json:"pubkey"`
	Pof       Pof         `json:"pof"`
}

// WithdrawalState is the lifecycle state of a withdrawal.
type WithdrawalState string

const (
	WithdrawalPending  WithdrawalState = "pending"
	WithdrawalComplete WithdrawalState = "complete"
	WithdrawalError    WithdrawalState = "error"
)

// WithdrawalRequest is the header-signed request a relay submits to cash
// out its pending balance.
type WithdrawalRequest struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// WithdrawalStateData tracks the current lifecycle state of a withdrawal
// and when it last changed.
type WithdrawalStateData struct {
	State        WithdrawalState `json:"state"`
	StateChanged int64           `json:"state_changed"`
}

// Withdrawal is the payment system's response to a withdrawal request.
type Withdrawal struct {
	ID        string              `json:"id"`
	StateData WithdrawalStateData `json:"state_data"`
	Request   WithdrawalRequest   `json:"withdrawal_request"`
	Receipt   string              `json:"receipt"`
	RelayPK   b64e.PubKey         `json:"-"`
}

// BalanceView is the public, truncated-to-integer view of a relay's
// balance returned by GET /payout/balance.
type BalanceView struct {
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
}

// ServicekeyCfg describes the servicekey issuance parameters advertised
// in /info.
type ServicekeyCfg struct {
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
	Duration int64           `json:"duration"`
}

// SettlementCfg describes the settlement/fee parameters advertised in
// /info.
type SettlementCfg struct {
	FeePercent       decimal.Decimal `json:"fee_percent"`
	SubmissionWindow int64           `json:"submission_window"`
}

// PayoutCfg describes one configured payout method.
type PayoutCfg struct {
	Endpoint     string `json:"endpoint"`
	Type         string `json:"type"`
	CheckPeriod  int64  `json:"check_period"`
	MinWithdrawal int64 `json:"min_withdrawal"`
	MaxWithdrawal int64 `json:"max_withdrawal"`
}

// Public is the flattened /info response: defined configuration merged
// with server-derived fields.
type Public struct {
	Endpoint   string          `json:"endpoint"`
	PubKey     b64e.PubKey     `json:"public_key"`
	Version    string          `json:"version"`
	Enrollment Enrollment      `json:"enrollment"`
	Servicekey ServicekeyCfg   `json:"servicekey"`
	Settlement SettlementCfg   `json:"settlement"`
	Payout     []PayoutCfg     `json:"payout"`
}

// ErrorStatus is a convenience constructor mirroring an error as a Status.
func ErrorStatus(code int, err error) Status {
	return Status{Code: code, Desc: err.Error()}
}
