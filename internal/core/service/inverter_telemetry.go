package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	INVERTER_POWER_LIMIT_SWITCH_REG   = 3069
	INVERTER_POWER_LIMIT_VALUE_REG    = 3080
	INVERTER_POWER_LIMIT_ON           = 0xAA
	INVERTER_POWER_LIMIT_OFF          = 0x55
	INVERTER_POWER_LIMIT_WATT_PER_BIT = 10
)

type InverterTelemetryConfig struct {
	Registers        domain.InverterRegisters
	ReadAttempts     int
	RegisterDelay    time.Duration
	StatusAttempts   int
	IdentifyAttempts int
	IdentifyDelay    time.Duration
	RatedPower       uint
}

func DefaultInverterTelemetryConfig() InverterTelemetryConfig {
	return InverterTelemetryConfig{
		Registers:        domain.DefaultInverterRegisters(),
		ReadAttempts:     3,
		RegisterDelay:    4 * time.Millisecond,
		StatusAttempts:   3,
		IdentifyAttempts: 6,
		IdentifyDelay:    time.Second,
		RatedPower:       6000,
	}
}

// InverterTelemetry reads the inverter register table. A register that keeps
// failing reads as 0 without invalidating the rest of the pass.
type InverterTelemetry struct {
	port      port.HoldingRegisterPort
	cfg       InverterTelemetryConfig
	logger    *zap.Logger
	sleep     Sleeper
	registers []domain.Register
	last      domain.InverterReading
	serial    string
}

func NewInverterTelemetry(p port.HoldingRegisterPort, cfg InverterTelemetryConfig, logger *zap.Logger, sleep Sleeper) *InverterTelemetry {
	if sleep == nil {
		sleep = SleepContext
	}
	return &InverterTelemetry{
		port:      p,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleep,
		registers: append([]domain.Register(nil), cfg.Registers.Telemetry...),
	}
}

// Identify reads the serial number and checks the production date encoded in
// it, which is how the supported inverter family is recognised.
func (t *InverterTelemetry) Identify(ctx context.Context) error {
	var serial string
	var err error
	for attempt := 1; attempt <= t.cfg.IdentifyAttempts; attempt++ {
		serial, err = t.readSerial()
		if err == nil {
			break
		}
		t.logger.Warn("inverter@identify: serial read failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < t.cfg.IdentifyAttempts {
			if serr := t.sleep(ctx, t.cfg.IdentifyDelay); serr != nil {
				return serr
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: inverter: %v", domain.ErrDeviceNotFound, err)
	}
	if !CheckProductionDate(serial) {
		return fmt.Errorf("%w: inverter: implausible serial %q", domain.ErrDeviceNotFound, serial)
	}
	t.serial = serial
	t.logger.Info("inverter@identify: found inverter", zap.String("serial", serial))
	return nil
}

func (t *InverterTelemetry) readSerial() (string, error) {
	serial := ""
	for i := uint16(0); i < domain.INVERTER_SERIAL_REG_COUNT; i++ {
		v, err := t.port.ReadU16(domain.INVERTER_SERIAL_REG_START + i)
		if err != nil {
			return "", err
		}
		serial += fmt.Sprintf("%04X", SwapNibbles(v))
	}
	return serial, nil
}

// SwapNibbles reverses the nibble order of a register, the inverter stores
// its serial and version codes that way.
func SwapNibbles(b uint16) uint16 {
	return (b&0xf)<<12 | (b&0xf0)<<4 | (b&0xf00)>>4 | (b&0xf000)>>12
}

// CheckProductionDate validates the YYMDD production code at offset 7 of a
// serial number: year 21..29, month as one hex digit, day up to 31.
func CheckProductionDate(serial string) bool {
	if len(serial) < 12 {
		return false
	}
	year, err := strconv.Atoi(serial[7:9])
	if err != nil {
		return false
	}
	month, err := strconv.ParseUint(serial[9:10], 16, 8)
	if err != nil {
		return false
	}
	day, err := strconv.Atoi(serial[10:12])
	if err != nil {
		return false
	}
	return year > 20 && year < 30 && month <= 12 && day <= 31
}

// Read performs one pass over the telemetry registers. The error is only
// non-nil when ctx is done.
func (t *InverterTelemetry) Read(ctx context.Context) (domain.InverterReading, error) {
	failed := 0
	for i := range t.registers {
		reg := &t.registers[i]
		v, err := t.readRegister(*reg)
		if err != nil {
			failed++
			t.logger.Debug("inverter@read: register failed", zap.Stringer("register", reg), zap.Error(err))
			reg.Value = 0
		} else {
			reg.Value = v
		}
		if err := t.sleep(ctx, t.cfg.RegisterDelay); err != nil {
			return t.last, err
		}
	}
	t.last = t.reading(failed)
	return t.last, nil
}

func (t *InverterTelemetry) readRegister(reg domain.Register) (float64, error) {
	var err error
	for attempt := 0; attempt < t.cfg.ReadAttempts; attempt++ {
		if reg.Width == domain.REGISTER_WIDTH_U32 {
			var raw uint32
			if raw, err = t.port.ReadU32(reg.Address); err == nil {
				return reg.Decode(raw), nil
			}
		} else {
			var raw uint16
			if raw, err = t.port.ReadU16(reg.Address); err == nil {
				return reg.Decode(uint32(raw)), nil
			}
		}
	}
	return 0, err
}

func (t *InverterTelemetry) value(name string) float64 {
	for _, r := range t.registers {
		if r.Name == name {
			return r.Value
		}
	}
	return 0
}

func (t *InverterTelemetry) reading(failed int) domain.InverterReading {
	r := domain.InverterReading{
		ActivePowerWatt: t.value(domain.INVERTER_REG_ACTIVE_POWER),
		EnergyTodayKWh:  t.value(domain.INVERTER_REG_ENERGY_TODAY),
		EnergyTotalKWh:  t.value(domain.INVERTER_REG_ENERGY_TOTAL),
		FailedRegisters: failed,
	}
	voltages := []string{domain.INVERTER_REG_VOLTAGE_L1, domain.INVERTER_REG_VOLTAGE_L2, domain.INVERTER_REG_VOLTAGE_L3}
	currents := []string{domain.INVERTER_REG_CURRENT_L1, domain.INVERTER_REG_CURRENT_L2, domain.INVERTER_REG_CURRENT_L3}
	for i := range r.Phases {
		v := t.value(voltages[i])
		a := t.value(currents[i])
		r.Phases[i] = domain.PhaseReading{Voltage: v, Current: a, Power: v * a}
		r.TotalCurrent += a
	}
	return r
}

// ReadStatus returns the operating status code, 0 when unreadable.
func (t *InverterTelemetry) ReadStatus() uint16 {
	for attempt := 0; attempt < t.cfg.StatusAttempts; attempt++ {
		v, err := t.port.ReadU16(t.cfg.Registers.Status.Address)
		if err == nil {
			return v
		}
	}
	return 0
}

func (t *InverterTelemetry) readVersion(reg domain.Register) string {
	v, err := t.port.ReadU16(reg.Address)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04X", SwapNibbles(v))
}

func (t *InverterTelemetry) Info() domain.InverterInfo {
	return domain.InverterInfo{
		Serial:       t.serial,
		Type:         t.readVersion(t.cfg.Registers.Type),
		DSPVersion:   t.readVersion(t.cfg.Registers.DSPVersion),
		LCDVersion:   t.readVersion(t.cfg.Registers.LCDVersion),
		RatedPower:   t.cfg.RatedPower,
		Manufacturer: "Solis",
		Model:        "S5",
	}
}

// PowerLimit returns the active export limit in watts.
func (t *InverterTelemetry) PowerLimit() (uint, error) {
	v, err := t.port.ReadHoldingU16(INVERTER_POWER_LIMIT_VALUE_REG)
	if err != nil {
		return 0, err
	}
	return uint(v) * INVERTER_POWER_LIMIT_WATT_PER_BIT, nil
}

// SetPowerLimit sets an absolute limit. 0 or the rated power turns limiting
// off; anything above the rated power is rejected.
func (t *InverterTelemetry) SetPowerLimit(limitWatt uint) error {
	if limitWatt > t.cfg.RatedPower {
		return fmt.Errorf("%w: %d W above rated %d W", domain.ErrPowerLimitOutOfRange, limitWatt, t.cfg.RatedPower)
	}
	current, err := t.PowerLimit()
	if err != nil {
		return fmt.Errorf("read power limit: %w", err)
	}
	if current == limitWatt {
		return nil
	}
	if limitWatt > 0 && limitWatt < t.cfg.RatedPower {
		if err := t.port.WriteU16(INVERTER_POWER_LIMIT_SWITCH_REG, INVERTER_POWER_LIMIT_ON); err != nil {
			return fmt.Errorf("enable power limit: %w", err)
		}
		if err := t.port.WriteU16(INVERTER_POWER_LIMIT_VALUE_REG, uint16(limitWatt/INVERTER_POWER_LIMIT_WATT_PER_BIT)); err != nil {
			return fmt.Errorf("write power limit: %w", err)
		}
		t.logger.Info("inverter@limit: power limit set", zap.Uint("watt", limitWatt))
		return nil
	}
	if err := t.port.WriteU16(INVERTER_POWER_LIMIT_VALUE_REG, uint16(t.cfg.RatedPower/INVERTER_POWER_LIMIT_WATT_PER_BIT)); err != nil {
		return fmt.Errorf("write power limit: %w", err)
	}
	if err := t.port.WriteU16(INVERTER_POWER_LIMIT_SWITCH_REG, INVERTER_POWER_LIMIT_OFF); err != nil {
		return fmt.Errorf("disable power limit: %w", err)
	}
	t.logger.Info("inverter@limit: power limit off")
	return nil
}

func (t *InverterTelemetry) Refresh(ctx context.Context) error {
	_, err := t.Read(ctx)
	return err
}

// SurplusWatts uses the current inverter production as surplus.
func (t *InverterTelemetry) SurplusWatts() float64 {
	return t.last.ActivePowerWatt
}

// ensure interface compliance
var _ port.TelemetrySource = (*InverterTelemetry)(nil)
