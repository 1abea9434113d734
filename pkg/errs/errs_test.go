package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("wallet")))
	assert.Equal(t, KindStateConflict, KindOf(StateConflict("already processed")))
	assert.Equal(t, KindInsufficientFunds, KindOf(InsufficientFunds("low balance")))
	assert.Equal(t, KindDependency, KindOf(errors.New("connection refused")))
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := StateConflict("deposit already processed")
	wrapped := fmt.Errorf("settlement: %w", inner)
	assert.Equal(t, KindStateConflict, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindStateConflict))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("wallet")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(StateConflict("dup")))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(InsufficientFunds("low")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(errors.New("boom")))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("driver: bad connection")
	err := Wrap(KindDependency, "deposit lookup failed", inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "deposit lookup failed")
}
