package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"whatsapp-autoreply/internal/kv"
)

// sweepTimeout bounds one storage sweep or probe run by the scheduler.
const sweepTimeout = 30 * time.Second

type job struct {
	spec string
	fn   func()
}

func (a *Application) startJobs() error {
	a.sched = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	jobs := []job{
		{"@every 1m", a.SweepMemory},
		{"@every 10m", a.SweepStorage},
	}
	if f, ok := a.KV.(*kv.Failover); ok {
		jobs = append(jobs, job{"@every 30s", func() { a.probe(f) }})
	}

	for _, job := range jobs {
		if _, err := a.sched.AddFunc(job.spec, job.fn); err != nil {
			return fmt.Errorf("app: schedule %s: %w", job.spec, err)
		}
	}
	a.sched.Start()
	return nil
}

// SweepMemory drops expired in-process bookkeeping: dedup ids, reply windows
// and rule cooldowns.
func (a *Application) SweepMemory() {
	messages, senders := a.Gate.Sweep()
	cooldowns := a.Engine.Sweep()
	if messages+senders+cooldowns > 0 {
		zap.L().Debug("swept safety state",
			zap.Int("messages", messages), zap.Int("senders", senders), zap.Int("cooldowns", cooldowns))
	}
}

// SweepStorage removes expired conversation rows from stores without native TTL.
func (a *Application) SweepStorage() {
	sw, ok := a.KV.(kv.Sweeper)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := sw.Sweep(ctx)
	if err != nil {
		zap.L().Warn("conversation store sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("expired conversations removed", zap.Int("count", n))
	}
}

func (a *Application) probe(f *kv.Failover) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if err := f.Probe(ctx); err != nil {
		zap.L().Debug("kv primary still unavailable", zap.Error(err))
	}
}
