package service

import (
	"context"

	"marketplace/config"
)

// RegisterSweeps adds the settlement sweeps to sched at their configured intervals.
func RegisterSweeps(sched *Scheduler, svc *SettlementService, cfg config.SchedulerConfig) {
	sched.Add("pending-settlements", cfg.PendingSweepInterval, func(ctx context.Context) error {
		_, err := svc.RunPendingSweep(ctx)
		return err
	})
	sched.Add("retry-failed-settlements", cfg.RetrySweepInterval, func(ctx context.Context) error {
		_, err := svc.RunRetrySweep(ctx)
		return err
	})
	sched.Add("recover-stalled-payouts", cfg.RetrySweepInterval, func(ctx context.Context) error {
		_, err := svc.RecoverStalledPayouts(ctx)
		return err
	})
	sched.Add("sync-gateway-status", cfg.RetrySweepInterval, func(ctx context.Context) error {
		_, err := svc.RunGatewaySyncSweep(ctx)
		return err
	})
}
