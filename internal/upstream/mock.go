package upstream

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MockConnector simulates an upstream for local development and tests.
type MockConnector struct{}

func (c *MockConnector) Call(ctx context.Context, model string, payload []byte) ([]byte, error) {
	// 50-300ms of simulated upstream latency
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch model {
	case "unstable-model":
		return nil, &StatusError{Code: 500, Body: "simulated upstream failure"}
	case "busy-model":
		return nil, &ThrottleError{
			RetryAfter: 2 * time.Second,
			Cause:      &StatusError{Code: 429, Body: "simulated rate limit"},
		}
	case "":
		return nil, fmt.Errorf("model is required")
	default:
		return []byte(fmt.Sprintf(`{"model": %q, "choices": [{"message": {"role": "assistant", "content": "ok"}}]}`, model)), nil
	}
}
