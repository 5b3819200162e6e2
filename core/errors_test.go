package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyPoolComplete(t *testing.T) {
	cases := []error{
		errors.New("program error: 6005"),
		errors.New("on-chain error 0x1775"),
		errors.New("BondingCurveComplete"),
		ErrPoolComplete,
	}
	for _, err := range cases {
		if got := Classify(err); got != KindPoolComplete {
			t.Errorf("Classify(%v) = %v, want %v", err, got, KindPoolComplete)
		}
	}
}

func TestClassifyRateLimited(t *testing.T) {
	if got := Classify(errors.New("429 Too Many Requests")); got != KindRateLimited {
		t.Errorf("Classify = %v, want %v", got, KindRateLimited)
	}
}

func TestClassifyFundsInsufficient(t *testing.T) {
	if got := Classify(ErrFundsInsufficient); got != KindFundsInsufficient {
		t.Errorf("Classify = %v, want %v", got, KindFundsInsufficient)
	}
	if got := Classify(errors.New("insufficient lamports for rent")); got != KindFundsInsufficient {
		t.Errorf("Classify = %v, want %v", got, KindFundsInsufficient)
	}
}

func TestClassifyTransientNetwork(t *testing.T) {
	cases := []error{
		errors.New("context deadline exceeded: timeout"),
		errors.New("connection refused"),
		errors.New("rpc returned 503 Service Unavailable"),
	}
	for _, err := range cases {
		if got := Classify(err); got != KindTransientNetwork {
			t.Errorf("Classify(%v) = %v, want %v", err, got, KindTransientNetwork)
		}
	}
}

func TestClassifyAccountMissing(t *testing.T) {
	if got := Classify(errors.New("account not found")); got != KindAccountMissing {
		t.Errorf("Classify = %v, want %v", got, KindAccountMissing)
	}
}

func TestClassifyFatalFallback(t *testing.T) {
	if got := Classify(errors.New("completely unrecognized failure")); got != KindFatal {
		t.Errorf("Classify = %v, want %v", got, KindFatal)
	}
}

func TestClassifyUnwrapsClassifiedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewClassifiedError(KindSlippageExceeded, "slippage too high"))
	if got := Classify(wrapped); got != KindSlippageExceeded {
		t.Errorf("Classify(wrapped) = %v, want %v", got, KindSlippageExceeded)
	}
}
