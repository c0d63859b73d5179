package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("close trade: %w", InvalidState("TRADE_ALREADY_CLOSED", "trade already closed", "closed"))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "closed", e.State)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestUnavailableUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Unavailable("FEED_UNAVAILABLE", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExternalUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestHTTPStatusDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestErrorStringIncludesFields(t *testing.T) {
	err := Validation("MISSING_FIELDS", "required fields missing", map[string]string{"volume": "required", "symbol": "required"})
	assert.Equal(t, "validation [MISSING_FIELDS]: required fields missing {symbol=required, volume=required}", err.Error())
}

func TestRiskViolationCopiesList(t *testing.T) {
	in := []string{"position_size"}
	err := RiskViolation(in)
	in[0] = "changed"
	assert.Equal(t, []string{"position_size"}, err.Violations)
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
}
