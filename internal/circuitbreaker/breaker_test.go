package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	assert.True(t, b.Allow("model-a"))
	assert.Equal(t, StateClosed, b.State("model-a"))

	b.RecordFailure("model-a")
	b.RecordFailure("model-a")
	assert.True(t, b.Allow("model-a"), "below threshold stays closed")

	b.RecordFailure("model-a")
	assert.Equal(t, StateOpen, b.State("model-a"))
	assert.False(t, b.Allow("model-a"))
}

func TestBreaker_PerModelIsolation(t *testing.T) {
	b := New(1, time.Minute)

	b.RecordFailure("model-a")
	assert.False(t, b.Allow("model-a"))
	assert.True(t, b.Allow("model-b"))
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("model-a")
	b.RecordFailure("model-a")
	b.RecordSuccess("model-a")
	b.RecordFailure("model-a")
	b.RecordFailure("model-a")
	assert.Equal(t, StateClosed, b.State("model-a"))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("model-a")
	assert.False(t, b.Allow("model-a"))

	time.Sleep(20 * time.Millisecond)

	// First request after the open window is the probe
	assert.True(t, b.Allow("model-a"))
	assert.Equal(t, StateHalfOpen, b.State("model-a"))

	// Concurrent requests are rejected while the probe is in flight
	assert.False(t, b.Allow("model-a"))

	// Probe success closes the circuit
	b.RecordSuccess("model-a")
	assert.Equal(t, StateClosed, b.State("model-a"))
	assert.True(t, b.Allow("model-a"))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("model-a")
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow("model-a"))

	b.RecordFailure("model-a")
	assert.Equal(t, StateOpen, b.State("model-a"))
	assert.False(t, b.Allow("model-a"))
}
