package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridMeterSurplus(t *testing.T) {
	clock := &fakeClock{t: testStart}
	g := NewGridMeterSource(5*time.Second, clock.Now)

	// nothing received yet
	assert.Equal(t, 0.0, g.SurplusWatts())

	g.Update(-1200, testStart)
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, 1200.0, g.SurplusWatts())

	g.Update(300, testStart)
	assert.Equal(t, -300.0, g.SurplusWatts())

	clock.Set(6*time.Second, testStart)
	assert.Equal(t, 0.0, g.SurplusWatts(), "stale reading")
}

func TestParseGridMeterPayload(t *testing.T) {
	v, err := ParseGridMeterPayload([]byte(" -850.5\n"))
	require.NoError(t, err)
	assert.Equal(t, -850.5, v)

	v, err = ParseGridMeterPayload([]byte(`{"power": 1234, "voltage": 230}`))
	require.NoError(t, err)
	assert.Equal(t, 1234.0, v)

	_, err = ParseGridMeterPayload([]byte(`{"voltage": 230}`))
	assert.Error(t, err)

	_, err = ParseGridMeterPayload([]byte("unavailable"))
	assert.Error(t, err)
}
