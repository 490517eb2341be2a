package service

import (
	"context"
	"fmt"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
	"go.uber.org/zap"
)

type HeaterControlConfig struct {
	UnitId            uint8
	Registers         domain.HeaterRegisters
	DeviceType        uint16
	Dwell             time.Duration
	LargeStepWatts    float64
	MaxRetries        uint
	IdentifyAttempts  int
	IdentifyDelay     time.Duration
	TargetTemperature float64
	Steps             PowerStepTable
}

func DefaultHeaterControlConfig() HeaterControlConfig {
	return HeaterControlConfig{
		Registers:         domain.DefaultHeaterRegisters(),
		DeviceType:        domain.HEATER_DEVICE_TYPE,
		Dwell:             60 * time.Second,
		LargeStepWatts:    500,
		MaxRetries:        10,
		IdentifyAttempts:  3,
		IdentifyDelay:     time.Second,
		TargetTemperature: domain.HEATER_DEFAULT_TARGET_TEMP,
		Steps:             DefaultPowerStepTable(),
	}
}

type HeaterControllerOption func(*HeaterController)

func WithClock(now func() time.Time) HeaterControllerOption {
	return func(c *HeaterController) {
		c.now = now
	}
}

func WithSleeper(sleep Sleeper) HeaterControllerOption {
	return func(c *HeaterController) {
		c.sleep = sleep
	}
}

// HeaterController drives the relay board. It is not safe for concurrent use:
// a single owner calls Operate once per tick and applies target temperature
// changes between ticks.
type HeaterController struct {
	port   port.RegisterPort
	cfg    HeaterControlConfig
	logger *zap.Logger
	now    func() time.Time
	sleep  Sleeper

	connected          bool
	heartbeat          uint8
	commandedBits      domain.RelayBits
	lastSurplus        float64
	dwell              *DwellTimer
	currentTemperature *float64
	currentPower       *float64
	status             *domain.HeaterOperationMode
	faultCount         uint
	targetTemperature  float64
	fatal              *domain.FatalFault
}

func NewHeaterController(p port.RegisterPort, cfg HeaterControlConfig, logger *zap.Logger, opts ...HeaterControllerOption) *HeaterController {
	c := &HeaterController{
		port:              p,
		cfg:               cfg,
		logger:            logger,
		now:               time.Now,
		sleep:             SleepContext,
		targetTemperature: cfg.TargetTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dwell = NewDwellTimer(cfg.Dwell, cfg.LargeStepWatts, c.now())
	return c
}

// Identify checks the device type code. The controller only operates after
// a successful identification.
func (c *HeaterController) Identify(ctx context.Context) error {
	addr := c.cfg.Registers.DeviceType.Address
	var lastErr error
	for attempt := 1; attempt <= c.cfg.IdentifyAttempts; attempt++ {
		found, err := c.port.ReadU16(addr)
		if err == nil && found == c.cfg.DeviceType {
			c.logger.Info("heater@disconnected: found water heater", zap.String("type", fmt.Sprintf("%X", found)))
			c.connected = true
			return nil
		}
		if err != nil {
			lastErr = err
			c.logger.Warn("heater@disconnected: type check failed", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			lastErr = fmt.Errorf("unexpected device type %X", found)
			c.logger.Warn("heater@disconnected: unexpected device type", zap.Int("attempt", attempt), zap.String("type", fmt.Sprintf("%X", found)))
		}
		if attempt < c.cfg.IdentifyAttempts {
			if err := c.sleep(ctx, c.cfg.IdentifyDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: water heater: %v", domain.ErrDeviceNotFound, lastErr)
}

// Operate runs one control cycle with the given surplus. Transient faults are
// absorbed into the fault counter; only a *domain.FatalFault is returned.
func (c *HeaterController) Operate(surplus float64) error {
	if c.fatal != nil {
		return c.fatal
	}
	if !c.connected {
		return nil
	}

	err := c.cycle(surplus, c.now())
	if err == nil {
		c.faultCount = 0
		return nil
	}

	c.faultCount++
	c.logger.Info("heater@connected: cycle fault", zap.Uint("faults", c.faultCount), zap.Error(err))
	if c.faultCount >= c.cfg.MaxRetries {
		c.fatal = &domain.FatalFault{Faults: c.faultCount, Last: err}
		c.logger.Error("heater@faulted: device critical", zap.Error(c.fatal))
		return c.fatal
	}
	return nil
}

// cycle stops at the first fault. The relay coils are only ever written as
// one frame, so the device holds either the previous or the new pattern.
func (c *HeaterController) cycle(surplus float64, now time.Time) error {
	regs := c.cfg.Registers

	// last surplus follows every connected cycle, faulted or not
	delta := surplus - c.lastSurplus
	c.lastSurplus = surplus

	if err := c.port.WriteU16(regs.Heartbeat, uint16(c.heartbeat)); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	c.heartbeat = (c.heartbeat + 1) % domain.HEATER_HEARTBEAT_MODULO

	if c.dwell.Allow(delta, now) {
		bits := c.cfg.Steps.Classify(surplus)
		if bits != c.commandedBits {
			c.logger.Debug("heater@connected: switch",
				zap.Float64("surplus", surplus),
				zap.Float64("delta", delta),
				zap.Stringer("from", c.commandedBits),
				zap.Stringer("to", bits))
		}
		c.commandedBits = bits
		c.dwell.Switched(now)
	}

	raw, err := c.port.ReadU16(regs.Temperature.Address)
	if err != nil {
		// unknown temperature is treated as too hot
		c.commandedBits = domain.RelayOff
		if werr := c.port.WriteBits(regs.RelayCoils, c.commandedBits.Slice()); werr != nil {
			c.logger.Debug("heater@connected: could not force relays off", zap.Error(werr))
		}
		return fmt.Errorf("read temperature: %w", err)
	}
	temperature := regs.Temperature.Decode(uint32(raw))
	c.currentTemperature = &temperature
	if temperature >= c.targetTemperature {
		c.commandedBits = domain.RelayOff
	}

	if err := c.port.WriteBits(regs.RelayCoils, c.commandedBits.Slice()); err != nil {
		return fmt.Errorf("write relays: %w", err)
	}

	rawPower, err := c.port.ReadU16(regs.Power.Address)
	if err != nil {
		return fmt.Errorf("read power: %w", err)
	}
	power := regs.Power.Decode(uint32(rawPower))
	c.currentPower = &power

	rawStatus, err := c.port.ReadU16(regs.OperationMode.Address)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	status := domain.HeaterOperationMode(rawStatus)
	c.status = &status

	return nil
}

func (c *HeaterController) SetTargetTemperature(t float64) {
	c.targetTemperature = t
}

func (c *HeaterController) TargetTemperature() float64 {
	return c.targetTemperature
}

func (c *HeaterController) Connected() bool {
	return c.connected
}

func (c *HeaterController) Snapshot() domain.HeaterSnapshot {
	s := domain.HeaterSnapshot{
		Connected:         c.connected,
		Heartbeat:         c.heartbeat,
		CommandedBits:     c.commandedBits,
		LastSurplus:       c.lastSurplus,
		LastSwitchTime:    c.dwell.LastSwitch(),
		FaultCount:        c.faultCount,
		TargetTemperature: c.targetTemperature,
	}
	if c.currentTemperature != nil {
		v := *c.currentTemperature
		s.CurrentTemperature = &v
	}
	if c.currentPower != nil {
		v := *c.currentPower
		s.CurrentPower = &v
	}
	if c.status != nil {
		v := *c.status
		s.Status = &v
	}
	return s
}

func (c *HeaterController) Info() domain.HeaterInfo {
	return domain.HeaterInfo{
		DeviceType: fmt.Sprintf("%X", c.cfg.DeviceType),
		UnitId:     c.cfg.UnitId,
	}
}
