package services

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MaintenanceScheduler runs the periodic housekeeping jobs: flushing the
// Redis audit queue, archiving old audit rows to S3, and refreshing the
// cached is_paid flags.
type MaintenanceScheduler struct {
	cron    *cron.Cron
	audit   *AuditService
	archive *AuditArchiveService
	feeDues *FeeDueService
}

func NewMaintenanceScheduler() *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:    cron.New(),
		audit:   Audit(),
		archive: NewAuditArchiveService(),
		feeDues: NewFeeDueService(),
	}
}

// Start registers and launches the cron jobs.
func (ms *MaintenanceScheduler) Start() {
	// Hourly: drain the Redis audit queue into the database.
	ms.mustAdd("0 * * * *", func() {
		if _, err := ms.audit.FlushCachedAudits(); err != nil {
			logrus.WithError(err).Warn("Periodic audit flush failed")
		}
	})

	// Nightly at 02:00: archive audit rows older than 30 days to S3.
	ms.mustAdd("0 2 * * *", func() {
		if err := ms.archive.ArchiveOldAudits(30); err != nil {
			logrus.WithError(err).Warn("Periodic audit archive failed")
		}
	})

	// Nightly at 03:00: reconcile the cached is_paid flags against the
	// authoritative balance formula.
	ms.mustAdd("0 3 * * *", func() {
		updated, err := ms.feeDues.RecomputePaidFlags()
		if err != nil {
			logrus.WithError(err).Warn("Periodic is_paid reconcile failed")
			return
		}
		if updated > 0 {
			logrus.Infof("Reconciled %d stale is_paid flags", updated)
		}
	})

	ms.cron.Start()
	logrus.Info("Maintenance scheduler started")
}

// Stop halts the cron runner, waiting for running jobs.
func (ms *MaintenanceScheduler) Stop() {
	ctx := ms.cron.Stop()
	<-ctx.Done()
}

func (ms *MaintenanceScheduler) mustAdd(spec string, job func()) {
	if _, err := ms.cron.AddFunc(spec, job); err != nil {
		logrus.WithError(err).Fatalf("Invalid cron spec %q", spec)
	}
}
