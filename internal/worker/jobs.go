package worker

import (
	"context"
	"log/slog"
)

type BlacklistPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// BlacklistPurgeHandler deletes revocation records of refresh tokens that
// have expired on their own.
func BlacklistPurgeHandler(purger BlacklistPurger, logger *slog.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		n, err := purger.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("purged expired blacklist entries", "job_id", job.ID, "deleted", n)
		return nil
	}
}
