package service

import "time"

// DwellTimer gates switching decisions. Shrinking surplus switches at once,
// small increases wait dwell/10 and large increases wait the full dwell.
type DwellTimer struct {
	dwell      time.Duration
	largeStep  float64
	lastSwitch time.Time
}

// NewDwellTimer starts with the last switch one full dwell in the past so the
// first decision is always allowed.
func NewDwellTimer(dwell time.Duration, largeStep float64, now time.Time) *DwellTimer {
	return &DwellTimer{
		dwell:      dwell,
		largeStep:  largeStep,
		lastSwitch: now.Add(-dwell),
	}
}

func (d *DwellTimer) Settle() time.Duration {
	return d.dwell / 10
}

func (d *DwellTimer) LastSwitch() time.Time {
	return d.lastSwitch
}

// Required returns how long since the last switch a change of delta watts
// must wait.
func (d *DwellTimer) Required(delta float64) time.Duration {
	switch {
	case delta < 0:
		return 0
	case delta <= d.largeStep:
		return d.Settle()
	default:
		return d.dwell
	}
}

func (d *DwellTimer) Allow(delta float64, now time.Time) bool {
	return now.Sub(d.lastSwitch) >= d.Required(delta)
}

func (d *DwellTimer) Switched(now time.Time) {
	d.lastSwitch = now
}
