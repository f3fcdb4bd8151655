package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/metrics"
)

// Poller runs reconciliation passes on a cron schedule. A failed pass is
// logged and the next tick proceeds normally.
type Poller struct {
	cron        *cron.Cron
	matcher     *Matcher
	spec        string
	passTimeout time.Duration
	logger      *zap.Logger
}

// NewPoller constructs a Poller firing on the given cron spec
// (e.g. "@every 15m").
func NewPoller(matcher *Matcher, spec string, passTimeout time.Duration, logger *zap.Logger) *Poller {
	if spec == "" {
		spec = "@every 15m"
	}
	if passTimeout <= 0 {
		passTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cron:        cron.New(),
		matcher:     matcher,
		spec:        spec,
		passTimeout: passTimeout,
		logger:      logger,
	}
}

// Start registers the job and starts the scheduler, running one pass
// immediately so confirmations don't wait for the first tick.
func (p *Poller) Start(ctx context.Context) error {
	if _, err := p.cron.AddFunc(p.spec, func() { p.runPass(ctx) }); err != nil {
		return fmt.Errorf("register reconcile schedule %q: %w", p.spec, err)
	}
	p.cron.Start()
	p.logger.Info("reconcile poller started", zap.String("spec", p.spec))

	go p.runPass(ctx)
	return nil
}

// Stop shuts down the scheduler, waiting for a running pass to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("reconcile poller stopped")
}

func (p *Poller) runPass(ctx context.Context) {
	// A panicking pass must not take the scheduler (or the process) down;
	// the next tick gets a fresh attempt.
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveReconcilePass("failed", 0)
			p.logger.Error("reconcile pass panicked, will retry on next tick", zap.Any("panic", r))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	passCtx, cancel := context.WithTimeout(ctx, p.passTimeout)
	defer cancel()

	result, err := p.matcher.Reconcile(passCtx)
	if err != nil {
		metrics.ObserveReconcilePass("failed", 0)
		p.logger.Warn("reconcile pass failed, will retry on next tick", zap.Error(err))
		return
	}
	metrics.ObserveReconcilePass("succeeded", len(result.Confirmed))
	p.logger.Info("reconcile pass complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("skipped", len(result.Skips)),
	)
}
