package apify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client for testing poll functions.
type mockClient struct {
	getRunFunc func(ctx context.Context, id string) (*Run, error)
}

func (m *mockClient) StartRun(context.Context, string, RunInput) (*Run, error) {
	return nil, nil
}

func (m *mockClient) GetRun(ctx context.Context, id string) (*Run, error) {
	return m.getRunFunc(ctx, id)
}

func (m *mockClient) ListDatasetItems(context.Context, string, int, int) ([]ReviewItem, error) {
	return nil, nil
}

func TestWaitForRun_SucceedsImmediately(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			return &Run{ID: id, Status: RunStatusSucceeded, DefaultDatasetID: "ds-1"}, nil
		},
	}

	run, err := WaitForRun(context.Background(), mock, "run-123",
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
}

func TestWaitForRun_SucceedsAfterRetries(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			n := calls.Add(1)
			if n < 3 {
				return &Run{ID: id, Status: RunStatusRunning}, nil
			}
			return &Run{ID: id, Status: RunStatusSucceeded, DefaultDatasetID: "ds-2"}, nil
		},
	}

	run, err := WaitForRun(context.Background(), mock, "run-456",
		WithPollInterval(10*time.Millisecond),
		WithPollCap(20*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForRun_ReturnsTerminalFailure(t *testing.T) {
	// A FAILED run is terminal; WaitForRun returns it rather than erroring.
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			return &Run{ID: id, Status: RunStatusFailed}, nil
		},
	}

	run, err := WaitForRun(context.Background(), mock, "run-fail",
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.True(t, run.Finished())
}

func TestWaitForRun_Timeout(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			return &Run{ID: id, Status: RunStatusRunning}, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := WaitForRun(ctx, mock, "run-timeout",
		WithPollInterval(10*time.Millisecond),
		WithPollCap(20*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForRun_DefaultTimeout(t *testing.T) {
	// Applies its own timeout when the caller's context has no deadline.
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			return &Run{ID: id, Status: RunStatusRunning}, nil
		},
	}

	_, err := WaitForRun(context.Background(), mock, "run-default-timeout",
		WithPollInterval(5*time.Millisecond),
		WithPollCap(10*time.Millisecond),
		WithPollTimeout(50*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForRun_ErrorPropagation(t *testing.T) {
	mock := &mockClient{
		getRunFunc: func(ctx context.Context, id string) (*Run, error) {
			return nil, &APIError{StatusCode: 500, Body: "server error"}
		},
	}

	_, err := WaitForRun(context.Background(), mock, "run-err",
		WithPollInterval(10*time.Millisecond),
	)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}
