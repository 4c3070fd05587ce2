package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")

	transport := fmt.Errorf("lodgements: %w", NewTransportError("https://example.com/a.xlsx", "GET failed", cause))
	assert.True(t, IsTransport(transport))
	assert.False(t, IsParse(transport))
	assert.ErrorIs(t, transport, cause)

	parse := fmt.Errorf("holdings: %w", NewParseError("https://example.com/b.xlsx", "no period", ErrNoPeriod))
	assert.True(t, IsParse(parse))
	assert.ErrorIs(t, parse, ErrNoPeriod)

	storage := NewStorageError("write", "/tmp/cache/abc.xlsx", cause)
	assert.True(t, IsStorage(storage))
	assert.Contains(t, storage.Error(), "/tmp/cache/abc.xlsx")
}
