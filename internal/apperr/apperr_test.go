package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesCodeAndCause(t *testing.T) {
	err := Backend(CodeNotFound, "shift not found")
	require.Equal(t, "not_found: shift not found", err.Error())

	cause := errors.New("dial tcp: refused")
	wrapped := Transport(cause)
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "refused")
}

func TestKindHelpersFollowWrapping(t *testing.T) {
	err := fmt.Errorf("close shift: %w", Validation("notes are required"))

	require.True(t, IsValidation(err))
	require.False(t, IsConflict(err))

	appErr, ok := As(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, appErr.Kind)
}

func TestHasCodeOnlyMatchesBackendErrors(t *testing.T) {
	require.True(t, HasCode(Backend(CodeConflict, "shift already open"), CodeConflict))
	require.False(t, HasCode(Unknown("conflict"), CodeConflict))
	require.False(t, HasCode(errors.New("plain"), CodeConflict))
}
