package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
)

// GridMeterSource derives surplus from an external grid meter reading, where
// positive grid power is import. Stale readings yield no surplus.
type GridMeterSource struct {
	mu        sync.Mutex
	maxAge    time.Duration
	now       func() time.Time
	powerWatt float64
	at        time.Time
}

func NewGridMeterSource(maxAge time.Duration, now func() time.Time) *GridMeterSource {
	if now == nil {
		now = time.Now
	}
	return &GridMeterSource{
		maxAge: maxAge,
		now:    now,
	}
}

func (g *GridMeterSource) Update(powerWatt float64, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.powerWatt = powerWatt
	g.at = at
}

func (g *GridMeterSource) Refresh(ctx context.Context) error {
	return ctx.Err()
}

func (g *GridMeterSource) SurplusWatts() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.at.IsZero() || g.now().Sub(g.at) > g.maxAge {
		return 0
	}
	return -g.powerWatt
}

type gridMeterPayload struct {
	Power *float64 `json:"power"`
}

// ParseGridMeterPayload accepts a bare number or a JSON object with a "power"
// field, both in watts.
func ParseGridMeterPayload(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var p gridMeterPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return 0, fmt.Errorf("invalid grid meter payload: %w", err)
	}
	if p.Power == nil {
		return 0, fmt.Errorf("invalid grid meter payload: no power field")
	}
	return *p.Power, nil
}

// ensure interface compliance
var _ port.TelemetrySource = (*GridMeterSource)(nil)
