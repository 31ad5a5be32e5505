package sweeper

import (
	"fmt"
	"time"

	"hostplane/internal/common"
	"hostplane/internal/engine"
)

const DefaultInterval = 60 * time.Second

// Sweeper periodically moves timed-out pending requests to expired. It
// is safe to run alongside live decision traffic, a request that gets
// decided between listing and swapping is left alone.
type Sweeper struct {
	engine      *engine.Engine
	interval    time.Duration
	done        chan common.Done
	serviceLogs chan<- common.ServiceLog
}

type NewSweeperOpts struct {
	Engine      *engine.Engine
	Interval    time.Duration
	Done        chan common.Done
	ServiceLogs chan<- common.ServiceLog
}

func NewSweeper(opts NewSweeperOpts) (*Sweeper, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("failed to receive an engine instance")
	}
	if opts.Done == nil {
		return nil, fmt.Errorf("failed to receive a done channel")
	}
	sweeper := &Sweeper{
		engine:      opts.Engine,
		interval:    opts.Interval,
		done:        opts.Done,
		serviceLogs: opts.ServiceLogs,
	}
	if sweeper.interval <= 0 {
		sweeper.interval = DefaultInterval
	}
	if sweeper.serviceLogs == nil {
		sweeper.serviceLogs = common.GetNoopServiceLog()
	}
	return sweeper, nil
}

// Start blocks until the done channel receives a message; run it in a
// goroutine
func (s *Sweeper) Start() {
	s.serviceLogs <- common.ServiceLogf(common.LogLevelInfo, "starting expiry sweeper with interval[%v]...", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			s.serviceLogs <- common.ServiceLogf(common.LogLevelInfo, "stopping expiry sweeper...")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	expired, err := s.engine.SweepExpired()
	if err != nil {
		s.serviceLogs <- common.ServiceLogf(common.LogLevelError, "failed to sweep expired requests: %s", err)
		return
	}
	if expired > 0 {
		s.serviceLogs <- common.ServiceLogf(common.LogLevelInfo, "expired %v timed-out requests", expired)
	}
}
