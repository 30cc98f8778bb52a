package ledger

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidQuantity    Kind = "InvalidQuantity"
	UnknownSymbol      Kind = "UnknownSymbol"
	InsufficientFunds  Kind = "InsufficientFunds"
	InsufficientShares Kind = "InsufficientShares"
)

// Stage is where in Validating -> Pricing -> Applying a request was decided.
type Stage string

const (
	StageValidating Stage = "validating"
	StagePricing    Stage = "pricing"
	StageApplying   Stage = "applying"
)

var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Rejection is a trade that was refused with no state change. Retrying it
// is always safe.
type Rejection struct {
	Kind   Kind
	Stage  Stage
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error {
	switch r.Kind {
	case InvalidQuantity:
		return ErrInvalidQuantity
	case UnknownSymbol:
		return ErrUnknownSymbol
	case InsufficientFunds:
		return ErrInsufficientFunds
	case InsufficientShares:
		return ErrInsufficientShares
	}
	return nil
}

func reject(kind Kind, stage Stage, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// AsRejection reports whether err is (or wraps) a Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
