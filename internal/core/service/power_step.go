package service

import (
	"math"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
)

// PowerStep is one bin of the surplus partition, bounds inclusive.
type PowerStep struct {
	Min  int64
	Max  int64
	Bits domain.RelayBits
}

// PowerStepTable maps a signed surplus onto one of the eight relay patterns.
// The first and last bins are open ended so every value has a step.
type PowerStepTable struct {
	steps []PowerStep
}

func DefaultPowerStepTable() PowerStepTable {
	return PowerStepTable{
		steps: []PowerStep{
			{Min: math.MinInt64, Max: 499, Bits: domain.RelayBits{false, false, false}},
			{Min: 500, Max: 999, Bits: domain.RelayBits{true, false, false}},
			{Min: 1000, Max: 1499, Bits: domain.RelayBits{false, true, false}},
			{Min: 1500, Max: 1999, Bits: domain.RelayBits{true, true, false}},
			{Min: 2000, Max: 2499, Bits: domain.RelayBits{false, false, true}},
			{Min: 2500, Max: 2999, Bits: domain.RelayBits{true, false, true}},
			{Min: 3000, Max: 3499, Bits: domain.RelayBits{false, true, true}},
			{Min: 3500, Max: math.MaxInt64, Bits: domain.RelayBits{true, true, true}},
		},
	}
}

func (t PowerStepTable) Steps() []PowerStep {
	return t.steps
}

// Classify returns the relay pattern for surplus. Fractional watts are floored
// so 499.9 stays in the lowest bin.
func (t PowerStepTable) Classify(surplus float64) domain.RelayBits {
	if math.IsNaN(surplus) {
		return domain.RelayOff
	}
	var s int64
	switch {
	case surplus <= math.MinInt64:
		s = math.MinInt64
	case surplus >= math.MaxInt64:
		s = math.MaxInt64
	default:
		s = int64(math.Floor(surplus))
	}
	// scan from the top so a shared boundary resolves to the higher bin
	for i := len(t.steps) - 1; i >= 0; i-- {
		if s >= t.steps[i].Min && s <= t.steps[i].Max {
			return t.steps[i].Bits
		}
	}
	return domain.RelayOff
}
