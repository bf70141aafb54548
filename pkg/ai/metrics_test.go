package ai

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsTracker(t *testing.T) {
	var tracker MetricsTracker

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			tracker.AddMetrics(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 100})
		})
	}
	wg.Wait()

	m := tracker.GetMetrics()
	assert.Equal(t, 100, m.InputTokens)
	assert.Equal(t, 150, m.TotalTokens)
	assert.Equal(t, 10, m.Requests)
	assert.Equal(t, int64(1000), m.DurationMs)
	assert.InDelta(t, 150.0, float64(m.TokenPerSecond), 0.01)

	tracker.ResetMetrics()
	assert.Equal(t, ModelMetrics{}, tracker.GetMetrics())
}
