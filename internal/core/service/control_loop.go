package service

import (
	"context"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
)

// ControlLoop runs one tick: inverter telemetry, surplus, heater cycle, in
// that order. The inverter is optional when the surplus comes from elsewhere.
type ControlLoop struct {
	heater   *HeaterController
	inverter *InverterTelemetry
	source   port.TelemetrySource
	now      func() time.Time
}

func NewControlLoop(heater *HeaterController, inverter *InverterTelemetry, source port.TelemetrySource, now func() time.Time) *ControlLoop {
	if now == nil {
		now = time.Now
	}
	if source == nil && inverter != nil {
		source = inverter
	}
	return &ControlLoop{
		heater:   heater,
		inverter: inverter,
		source:   source,
		now:      now,
	}
}

func (l *ControlLoop) Heater() *HeaterController {
	return l.heater
}

func (l *ControlLoop) Inverter() *InverterTelemetry {
	return l.inverter
}

// Tick returns a non-nil error only for a fatal heater fault or a done ctx.
func (l *ControlLoop) Tick(ctx context.Context) (*domain.ControlTickResult, error) {
	started := l.now()
	result := &domain.ControlTickResult{Started: started}

	if l.inverter != nil {
		reading, err := l.inverter.Read(ctx)
		if err != nil {
			return nil, err
		}
		result.Inverter = &reading
		result.InverterStatus = l.inverter.ReadStatus()
	}
	if l.source != nil && l.source != port.TelemetrySource(l.inverter) {
		if err := l.source.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	if l.source != nil {
		result.Surplus = l.source.SurplusWatts()
	}
	err := l.heater.Operate(result.Surplus)
	result.Heater = l.heater.Snapshot()
	result.Elapsed = l.now().Sub(started)
	return result, err
}
