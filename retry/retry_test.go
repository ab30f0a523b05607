package retry

import (
	"errors"
	"testing"

	"github.com/ridge/livequery/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoFirstAttemptSucceeds(t *testing.T) {
	ctx := test.Context(t)

	calls := 0
	err := Do(ctx, FixedConfig{}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	ctx := test.Context(t)

	calls := 0
	err := Do(ctx, FixedConfig{}, func() error {
		calls++
		if calls < 3 {
			return Retriable(errors.New("try again"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetriableError(t *testing.T) {
	ctx := test.Context(t)

	fatal := errors.New("fatal")
	calls := 0
	err := Do(ctx, FixedConfig{}, func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoMaxAttempts(t *testing.T) {
	ctx := test.Context(t)

	boom := errors.New("boom")
	calls := 0
	err := Do(ctx, FixedConfig{MaxAttempts: 4}, func() error {
		calls++
		return Retriable(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}
