package synth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dgnsrekt/readalong/internal/observe"
	"github.com/dgnsrekt/readalong/internal/synth"
	"github.com/dgnsrekt/readalong/internal/synth/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)
	return m
}

func fastConfig() synth.ResilientConfig {
	return synth.ResilientConfig{
		Retries:    2,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
		MaxChars:   100,
	}
}

func TestResilientRetriesRetryable(t *testing.T) {
	p := &mock.Provider{FailFirst: 2}
	r := synth.NewResilient(p, fastConfig(), testMetrics(t))

	audio, err := r.Synthesize(context.Background(), "Hello there.", "v")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)
	assert.Equal(t, 3, p.CallCount())
}

func TestResilientGivesUp(t *testing.T) {
	p := &mock.Provider{FailFirst: 10}
	r := synth.NewResilient(p, fastConfig(), testMetrics(t))

	_, err := r.Synthesize(context.Background(), "Hello.", "")
	require.Error(t, err)
	assert.True(t, synth.IsRetryable(err))
	assert.Equal(t, 3, p.CallCount())
}

func TestResilientDoesNotRetryPermanent(t *testing.T) {
	p := &mock.Provider{Err: synth.NewError("mock", synth.CodeUnauthorized, "bad key", nil)}
	r := synth.NewResilient(p, fastConfig(), testMetrics(t))

	_, err := r.Synthesize(context.Background(), "Hello.", "")
	require.Error(t, err)
	assert.Equal(t, 1, p.CallCount())
}

func TestResilientTimeout(t *testing.T) {
	p := &mock.Provider{Delay: time.Second}
	cfg := fastConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.Retries = 0
	r := synth.NewResilient(p, cfg, testMetrics(t))

	_, err := r.Synthesize(context.Background(), "Hello.", "")
	assert.Equal(t, synth.CodeTimeout, synth.CodeOf(err))
}

func TestResilientValidatesInput(t *testing.T) {
	p := &mock.Provider{}
	r := synth.NewResilient(p, fastConfig(), testMetrics(t))

	_, err := r.Synthesize(context.Background(), "   ", "")
	assert.ErrorIs(t, err, synth.ErrEmptyText)

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err = r.Synthesize(context.Background(), string(long), "")
	assert.Equal(t, synth.CodeInvalidInput, synth.CodeOf(err))
	assert.Equal(t, 0, p.CallCount())
}

func TestFallbackFailsOver(t *testing.T) {
	down := &mock.Provider{Err: synth.NewError("down", synth.CodeUnauthorized, "revoked", nil)}
	up := &mock.Provider{Rate: 16000}

	f, err := synth.NewFallback(down, up)
	require.NoError(t, err)

	clip, err := synth.Render(context.Background(), f, "Hello.", "")
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.SampleRate)
	assert.Equal(t, 1, down.CallCount())

	// the fatal provider is skipped from now on
	_, err = f.Synthesize(context.Background(), "Again.", "")
	require.NoError(t, err)
	assert.Equal(t, 1, down.CallCount())
	assert.Equal(t, 2, up.CallCount())
}

func TestFallbackAllFail(t *testing.T) {
	boom := errors.New("boom")
	f, err := synth.NewFallback(&mock.Provider{Err: boom}, &mock.Provider{Err: boom})
	require.NoError(t, err)

	_, err = f.Synthesize(context.Background(), "Hello.", "")
	assert.ErrorIs(t, err, boom)

	_, err = synth.NewFallback()
	assert.ErrorIs(t, err, synth.ErrNoProvider)
}

func TestRender(t *testing.T) {
	p := &mock.Provider{Rate: 8000, CharsPerSecond: 10}
	clip, err := synth.Render(context.Background(), p, "0123456789", "")
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.InDelta(t, 1.0, clip.Seconds(), 0.001)
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   synth.Code
	}{
		{http.StatusUnauthorized, synth.CodeUnauthorized},
		{http.StatusForbidden, synth.CodeUnauthorized},
		{http.StatusTooManyRequests, synth.CodeRateLimited},
		{http.StatusGatewayTimeout, synth.CodeTimeout},
		{http.StatusServiceUnavailable, synth.CodeUnavailable},
		{http.StatusUnprocessableEntity, synth.CodeInvalidInput},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, synth.CodeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := synth.NewError("google", synth.CodeUnavailable, "request failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "google")
	assert.True(t, err.Retryable())
	assert.False(t, err.Fatal())
}
