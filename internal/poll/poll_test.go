package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_StopsAtFirstSuccess(t *testing.T) {
	calls := 0
	ok, err := Until(context.Background(), 10, time.Millisecond, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return attempt == 3, nil
	})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestUntil_ExhaustsBudget(t *testing.T) {
	calls := 0
	ok, err := Until(context.Background(), 5, time.Millisecond, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, calls)
}

func TestUntil_ToleratesConditionErrors(t *testing.T) {
	boom := errors.New("node detached")

	t.Run("recovers", func(t *testing.T) {
		ok, err := Until(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) (bool, error) {
			if attempt == 1 {
				return false, boom
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("reports last error when exhausted", func(t *testing.T) {
		ok, err := Until(context.Background(), 2, time.Millisecond, func(ctx context.Context, attempt int) (bool, error) {
			return false, boom
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ok, err := Until(ctx, 100, time.Hour, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		cancel()
		return false, nil
	})

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
