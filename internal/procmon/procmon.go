package procmon

import (
	"context"
	"runtime"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	DEFAULT_INTERVAL = 10 * time.Minute
	JOB_KEY          = "procmon"
)

// StatsFunc fetches the control loop counters. It may fail while the actors
// are restarting.
type StatsFunc func(ctx context.Context) (domain.GetControlStateResponse, error)

type Sample struct {
	HeapAlloc  uint64
	Sys        uint64
	Goroutines int
	Ticks      uint64
	Overruns   uint64
	Faulted    bool
}

// Monitor periodically logs memory, goroutine count and tick overruns.
type Monitor struct {
	scheduler quartz.Scheduler
	interval  time.Duration
	stats     StatsFunc
	logger    *zap.Logger
}

func New(interval time.Duration, stats StatsFunc, logger *zap.Logger) *Monitor {
	return &Monitor{
		scheduler: quartz.NewStdScheduler(),
		interval:  interval,
		stats:     stats,
		logger:    logger.With(zap.String("job", JOB_KEY)),
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	m.scheduler.Start(ctx)
	sampleJob := job.NewFunctionJob(func(ctx context.Context) (Sample, error) {
		s := m.Sample(ctx)
		m.log(s)
		return s, nil
	})
	return m.scheduler.ScheduleJob(quartz.NewJobDetail(sampleJob, quartz.NewJobKey(JOB_KEY)),
		quartz.NewSimpleTrigger(m.interval))
}

func (m *Monitor) Stop() {
	m.scheduler.Stop()
}

func (m *Monitor) Sample(ctx context.Context) Sample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s := Sample{
		HeapAlloc:  mem.HeapAlloc,
		Sys:        mem.Sys,
		Goroutines: runtime.NumGoroutine(),
	}
	if m.stats == nil {
		return s
	}
	state, err := m.stats(ctx)
	if err != nil {
		m.logger.Debug("procmon@sample: no control stats", zap.Error(err))
		return s
	}
	s.Ticks = state.Ticks
	s.Overruns = state.Overruns
	s.Faulted = state.Faulted
	return s
}

func (m *Monitor) log(s Sample) {
	m.logger.Info("procmon@sample",
		zap.Uint64("heap_alloc_kb", s.HeapAlloc/1024),
		zap.Uint64("sys_kb", s.Sys/1024),
		zap.Int("goroutines", s.Goroutines),
		zap.Uint64("ticks", s.Ticks),
		zap.Uint64("overruns", s.Overruns),
		zap.Bool("faulted", s.Faulted))
}
