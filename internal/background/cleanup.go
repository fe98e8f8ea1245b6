package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredChallengePurger removes stale email challenges
type ExpiredChallengePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AuditRetentionPurger removes audit entries past the retention window
type AuditRetentionPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// CleanupManager periodically purges expired email challenges and audit
// entries past retention
type CleanupManager struct {
	challenges     ExpiredChallengePurger
	audit          AuditRetentionPurger
	logger         *slog.Logger
	interval       time.Duration
	auditRetention time.Duration
	stopCh         chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challenges ExpiredChallengePurger,
	audit AuditRetentionPurger,
	logger *slog.Logger,
	interval time.Duration,
	auditRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challenges:     challenges,
		audit:          audit,
		logger:         logger,
		interval:       interval,
		auditRetention: auditRetention,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup purges both tables
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	purged, err := cm.challenges.PurgeExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired email challenges", slog.Any("error", err))
	} else if purged > 0 {
		cm.logger.Info("purged expired email challenges", slog.Int64("rows_deleted", purged))
	}

	purged, err = cm.audit.PurgeOlderThan(cleanupCtx, cm.auditRetention)
	if err != nil {
		cm.logger.Error("failed to purge old audit entries", slog.Any("error", err))
	} else if purged > 0 {
		cm.logger.Info("purged old audit entries", slog.Int64("rows_deleted", purged))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
