package domain

import "fmt"

type RegisterWidth uint8

const (
	REGISTER_WIDTH_U16 RegisterWidth = 1
	REGISTER_WIDTH_U32 RegisterWidth = 2
)

// Register describes one device value: where it lives, how wide it is and how
// the raw integer scales to engineering units. Value holds the last decoded
// reading.
type Register struct {
	Name    string
	Address uint16
	Width   RegisterWidth
	Scale   float64
	Unit    string
	Value   float64
}

func (r Register) Decode(raw uint32) float64 {
	if r.Scale == 0 {
		return float64(raw)
	}
	return float64(raw) * r.Scale
}

func (r Register) String() string {
	return fmt.Sprintf("%s@%d", r.Name, r.Address)
}

func U16Register(name string, addr uint16, scale float64, unit string) Register {
	return Register{Name: name, Address: addr, Width: REGISTER_WIDTH_U16, Scale: scale, Unit: unit}
}

func U32Register(name string, addr uint16, scale float64, unit string) Register {
	return Register{Name: name, Address: addr, Width: REGISTER_WIDTH_U32, Scale: scale, Unit: unit}
}
