package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyPending      = errors.New("balance change already pending")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrUnderflow           = errors.New("balance change would underflow")
	ErrOverflow            = errors.New("balance change would overflow")
)

// decimalMin/decimalMax bound the representable balance range to an
// i64-sized headroom, since balances are truncated to int64 at the
// BalanceView boundary.
var (
	decimalMin = decimal.New(-1<<62, 0)
	decimalMax = decimal.New(1<<62, 0)
)
