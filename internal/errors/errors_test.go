package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesStepAndCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(KindNetworkTransient, "tunnel", "open failed", cause).WithStep("dial")

	msg := err.Error()
	assert.Contains(t, msg, "tunnel[dial]")
	assert.Contains(t, msg, "open failed")
	assert.Contains(t, msg, "connection refused")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := New(KindTimeout, "probe", "sample timed out", cause)

	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindOfExtractsKindThroughWrapping(t *testing.T) {
	err := New(KindSchemaParse, "catalog", "bad json", nil)
	wrapped := fmt.Errorf("loading catalog: %w", err)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindSchemaParse, kind)
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := New(KindNetworkTransient, "tunnel", "retry me", nil)
	b := New(KindNetworkTransient, "installer", "different origin, same kind", nil)
	c := New(KindNetworkPermanent, "tunnel", "different kind", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}
