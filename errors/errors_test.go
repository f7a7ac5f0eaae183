package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	var permErr *backoff.PermanentError
	require.True(t, errors.As(err, &permErr))
}

func TestWrappedUnretriableIsStillUnretriable(t *testing.T) {
	err := fmt.Errorf("prepare: %w", Unretriable(fmt.Errorf("bar")))
	require.True(t, IsUnretriable(err))
}

func TestValidationIsUnretriable(t *testing.T) {
	err := Validation("unknown quality label %q", "9000p")
	require.True(t, IsValidation(err))
	require.True(t, IsUnretriable(err))
	require.Contains(t, err.Error(), "9000p")
}

func TestCorruptSourceIsUnretriable(t *testing.T) {
	err := CorruptSource("no video stream found")
	require.True(t, IsCorruptSource(err))
	require.True(t, IsUnretriable(err))
	require.False(t, IsValidation(err))
}

func TestTransientIOIsRetryable(t *testing.T) {
	err := TransientIO(fmt.Errorf("connection reset"))
	require.True(t, IsTransientIO(err))
	require.False(t, IsUnretriable(err))
}

func TestToolFailureClassification(t *testing.T) {
	err := ToolFailure("ffmpeg", fmt.Errorf("exit status 1"))
	require.True(t, IsToolFailure(err))
	require.False(t, IsUnretriable(err))
	require.Contains(t, err.Error(), "ffmpeg failed")

	// probe failures get wrapped fatal by the caller
	fatal := Unretriable(ToolFailure("ffprobe", fmt.Errorf("exit status 1")))
	require.True(t, IsToolFailure(fatal))
	require.True(t, IsUnretriable(fatal))
}
