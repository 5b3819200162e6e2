package core

// errors.go — the single classify() function spec.md §9 calls for. Workers
// consume ErrorKind, never raw strings; everything else in this package
// funnels error text and program error codes through Classify.
//
// Grounded on the string-matching shape of the pumpfun reference
// implementation's handleSellError (substring checks for "BondingCurveComplete",
// "0x1775", "6005"), generalized into one function per spec.md §9.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind is the taxonomy from spec.md §7.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindTransientNetwork
	KindPoolComplete
	KindFundsInsufficient
	KindSlippageExceeded
	KindAccountMissing
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransientNetwork:
		return "transient_network"
	case KindPoolComplete:
		return "pool_complete"
	case KindFundsInsufficient:
		return "funds_insufficient"
	case KindSlippageExceeded:
		return "slippage_exceeded"
	case KindAccountMissing:
		return "account_missing"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an underlying error with its ErrorKind, so a caller
// that already knows the kind (e.g. an executor that constructed a
// PoolComplete sentinel directly) doesn't need to round-trip through string
// matching.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (c *ClassifiedError) Error() string { return c.Err.Error() }
func (c *ClassifiedError) Unwrap() error { return c.Err }

// NewClassifiedError constructs a ClassifiedError for a known kind.
func NewClassifiedError(kind ErrorKind, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify maps an error (or a raw RPC error-code/text) to its ErrorKind.
// If err already carries a ClassifiedError, its kind is returned directly;
// otherwise substring and numeric-code heuristics apply (spec.md §7, §9).
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	text := strings.ToLower(err.Error())

	if containsPoolCompleteSignal(text) {
		return KindPoolComplete
	}
	if strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests") || strings.Contains(text, "429") {
		return KindRateLimited
	}
	if strings.Contains(text, "slippage") || strings.Contains(text, "price out of range") || strings.Contains(text, "exceeds desired slippage") {
		return KindSlippageExceeded
	}
	if strings.Contains(text, "insufficient") {
		return KindFundsInsufficient
	}
	if strings.Contains(text, "timeout") || strings.Contains(text, "connection refused") || isTransient5xx(text) {
		return KindTransientNetwork
	}
	if strings.Contains(text, "account not found") || strings.Contains(text, "account does not exist") || strings.Contains(text, "404") {
		return KindAccountMissing
	}
	return KindFatal
}

// containsPoolCompleteSignal recognizes the DEX's curve-complete error code
// in either decimal or hex form, and the literal program-error name.
func containsPoolCompleteSignal(text string) bool {
	if strings.Contains(text, strconv.Itoa(PoolCompleteErrorCodeDecimal)) {
		return true
	}
	if strings.Contains(text, strings.ToLower(PoolCompleteErrorCodeHex)) {
		return true
	}
	if strings.Contains(text, "bondingcurvecomplete") || strings.Contains(text, "curve complete") || strings.Contains(text, "pool complete") {
		return true
	}
	return false
}

func isTransient5xx(text string) bool {
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(text, code) {
			return true
		}
	}
	return false
}

// Sentinel errors the executors construct directly (already classified —
// Classify short-circuits on these via errors.As).
var (
	ErrFundsInsufficient = NewClassifiedError(KindFundsInsufficient, "insufficient funds for trade")
	ErrPoolComplete       = NewClassifiedError(KindPoolComplete, "bonding curve is complete, token has graduated")
)
