package cart

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds returned by Service. Match them with errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Store-level sentinels.
var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrActiveCartExists = errors.New("active cart already exists")
	ErrConflict         = errors.New("cart modified concurrently")
)

// Error carries the failure kind plus whatever context the caller needs to
// explain it (which product, how much was asked for, how much was left).
type Error struct {
	Kind      error
	UserID    string
	ProductID string
	Requested int
	Available int
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Kind == ErrInsufficientStock {
		fmt.Fprintf(&b, " (product %s: requested %d, available %d)", e.ProductID, e.Requested, e.Available)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidArgument(msg string) error {
	return &Error{Kind: ErrInvalidArgument, Msg: msg}
}

func notFound(userID, productID, msg string) error {
	return &Error{Kind: ErrNotFound, UserID: userID, ProductID: productID, Msg: msg}
}

func insufficientStock(userID, productID string, requested, available int) error {
	return &Error{Kind: ErrInsufficientStock, UserID: userID, ProductID: productID, Requested: requested, Available: available}
}

func invalidState(userID, msg string) error {
	return &Error{Kind: ErrInvalidState, UserID: userID, Msg: msg}
}

func txFailed(userID, msg string, err error) error {
	return &Error{Kind: ErrTransactionFailed, UserID: userID, Msg: msg, Err: err}
}
