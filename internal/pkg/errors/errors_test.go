package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestionFailedErrorMatching(t *testing.T) {
	cause := fmt.Errorf("embed batch: %w", ErrAIUnavailable)
	var err error = &IngestionFailedError{DocumentID: "doc-1", Cause: cause}

	require.True(t, errors.Is(err, ErrIngestionFailed))
	require.True(t, errors.Is(err, ErrAIUnavailable))
	require.False(t, errors.Is(err, ErrDuplicateDocument))

	var failed *IngestionFailedError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &failed))
	require.Equal(t, "doc-1", failed.DocumentID)
	require.Contains(t, err.Error(), "doc-1")
}

func TestIsHelpers(t *testing.T) {
	require.True(t, IsDuplicate(fmt.Errorf("x: %w", ErrDuplicateDocument)))
	require.True(t, IsTransient(fmt.Errorf("x: %w", ErrTransient)))
	require.True(t, IsNotFound(ErrNotFound))
	require.False(t, IsConflict(ErrNotFound))
}
