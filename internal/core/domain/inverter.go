package domain

const (
	INVERTER_REG_ACTIVE_POWER   = "active_power"
	INVERTER_REG_ENERGY_TODAY   = "energy_today"
	INVERTER_REG_ENERGY_TOTAL   = "energy_total"
	INVERTER_REG_VOLTAGE_L1     = "voltage_l1"
	INVERTER_REG_VOLTAGE_L2     = "voltage_l2"
	INVERTER_REG_VOLTAGE_L3     = "voltage_l3"
	INVERTER_REG_CURRENT_L1     = "current_l1"
	INVERTER_REG_CURRENT_L2     = "current_l2"
	INVERTER_REG_CURRENT_L3     = "current_l3"
	INVERTER_REG_STATUS         = "status"
	INVERTER_REG_TYPE           = "type"
	INVERTER_REG_DSP_VERSION    = "dsp_version"
	INVERTER_REG_LCD_VERSION    = "lcd_version"
	INVERTER_SERIAL_REG_START   = 3060
	INVERTER_SERIAL_REG_COUNT   = 4
)

// INVERTER_MAX_POWER_LIMIT_WATT is one 16 bit register in 10 W steps.
const INVERTER_MAX_POWER_LIMIT_WATT = 0xFFFF * 10

// InverterRegisters lists the telemetry registers read on every tick, in bus
// order, followed by the registers read on demand.
type InverterRegisters struct {
	Telemetry  []Register
	Status     Register
	Type       Register
	DSPVersion Register
	LCDVersion Register
}

func DefaultInverterRegisters() InverterRegisters {
	// U16 telemetry registers carry one decimal, U32 registers none
	return InverterRegisters{
		Telemetry: []Register{
			U32Register(INVERTER_REG_ACTIVE_POWER, 3004, 1, "W"),
			U16Register(INVERTER_REG_ENERGY_TODAY, 3015, 0.1, "kWh"),
			U32Register(INVERTER_REG_ENERGY_TOTAL, 3008, 1, "kWh"),
			U16Register(INVERTER_REG_VOLTAGE_L1, 3033, 0.1, "V"),
			U16Register(INVERTER_REG_VOLTAGE_L2, 3034, 0.1, "V"),
			U16Register(INVERTER_REG_VOLTAGE_L3, 3035, 0.1, "V"),
			U16Register(INVERTER_REG_CURRENT_L1, 3036, 0.1, "A"),
			U16Register(INVERTER_REG_CURRENT_L2, 3037, 0.1, "A"),
			U16Register(INVERTER_REG_CURRENT_L3, 3038, 0.1, "A"),
		},
		Status:     U16Register(INVERTER_REG_STATUS, 3043, 1, ""),
		Type:       U16Register(INVERTER_REG_TYPE, 2999, 1, ""),
		DSPVersion: U16Register(INVERTER_REG_DSP_VERSION, 3000, 1, ""),
		LCDVersion: U16Register(INVERTER_REG_LCD_VERSION, 3001, 1, ""),
	}
}

type PhaseReading struct {
	Voltage float64
	Current float64
	Power   float64
}

type InverterReading struct {
	ActivePowerWatt float64
	EnergyTodayKWh  float64
	EnergyTotalKWh  float64
	Phases          [3]PhaseReading
	TotalCurrent    float64
	// FailedRegisters counts registers that read as 0 after exhausting retries.
	FailedRegisters int
}

type InverterInfo struct {
	Serial       string
	Type         string
	DSPVersion   string
	LCDVersion   string
	RatedPower   uint
	Manufacturer string
	Model        string
}

type HeaterInfo struct {
	DeviceType string
	UnitId     uint8
}
