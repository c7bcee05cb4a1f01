package salesforce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockClient implements Client for testing.
type mockClient struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	upsertOneFn func(ctx context.Context, sObjectName, externalIDField string, record map[string]any) (string, error)
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) UpsertOne(ctx context.Context, sObjectName, externalIDField string, record map[string]any) (string, error) {
	if m.upsertOneFn != nil {
		return m.upsertOneFn(ctx, sObjectName, externalIDField, record)
	}
	return "a00000000000001", nil
}

func TestMockClientImplementsInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*mockClient)(nil)
}

func TestNewClientReturnsClient(t *testing.T) {
	// Verify the type satisfies the interface.
	var _ Client = (*sfClient)(nil)

	// NewClient wraps a salesforce.Salesforce instance.
	client := NewClient(nil)
	require.NotNil(t, client)
	var _ Client = client //nolint:staticcheck // interface compliance check
}

func TestWithRateLimit(t *testing.T) {
	t.Run("sets limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(10)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, rate.Limit(10), c.limiter.Limit())
		assert.Equal(t, 10, c.limiter.Burst())
	})

	t.Run("zero rate skips limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(0)).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("negative rate skips limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(-5)).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("no option means no limiter", func(t *testing.T) {
		c := NewClient(nil).(*sfClient)
		assert.Nil(t, c.limiter)
	})

	t.Run("fractional rate gets burst of 1", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(0.5)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	// Create a limiter with zero burst so Wait always blocks.
	c := &sfClient{
		limiter: rate.NewLimiter(rate.Every(time.Hour), 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	err := c.wait(ctx)
	assert.Error(t, err)
}
