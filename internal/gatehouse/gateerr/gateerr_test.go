package gateerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := gateerr.AccessDenied("vehicle not active")

	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.NotErrorIs(t, err, gateerr.ErrNotFound)
}

func TestIs_BlacklistedIsAccessDenied(t *testing.T) {
	err := gateerr.Blacklisted("phone blacklisted")

	assert.ErrorIs(t, err, gateerr.ErrBlacklisted)
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)

	// Not the other way round.
	assert.NotErrorIs(t, gateerr.AccessDenied("x"), gateerr.ErrBlacklisted)
}

func TestKindAndReason_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("entry: %w", gateerr.InvalidState("approval is DENIED"))

	assert.Equal(t, gateerr.KindInvalidState, gateerr.KindOf(err))
	assert.Equal(t, "approval is DENIED", gateerr.ReasonOf(err))
}

func TestKindOf_PlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, gateerr.Kind(""), gateerr.KindOf(err))
	assert.Equal(t, "boom", gateerr.ReasonOf(err))
	assert.Equal(t, "", gateerr.ReasonOf(nil))
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := gateerr.Wrap(gateerr.KindInvalid, "could not save", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "could not save")
}
