package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

const pruneHistoryQuery = `DELETE FROM usage_history WHERE fetched_at < $1`

// HistoryCleaner removes usage history rows older than Retention.
type HistoryCleaner struct {
	DB        *sql.DB
	Retention time.Duration
	Log       *zap.Logger

	now func() time.Time
}

// Prune deletes every row fetched before now minus Retention and returns
// the number of rows removed.
func (c *HistoryCleaner) Prune(ctx context.Context) (int64, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	res, err := c.DB.ExecContext(ctx, pruneHistoryQuery, now().Add(-c.Retention).UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Run prunes once immediately and then on every tick of interval until ctx
// is done. Failures are logged and retried on the next tick.
func (c *HistoryCleaner) Run(ctx context.Context, interval time.Duration) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		removed, err := c.Prune(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("failed to prune usage history", zap.Error(err))
		case removed > 0:
			log.Info("pruned usage history", zap.Int64("removed", removed), zap.Duration("retention", c.Retention))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartHistoryCleaner runs a HistoryCleaner in the background until ctx is done.
func StartHistoryCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	c := &HistoryCleaner{DB: db, Retention: retention, Log: log}
	go c.Run(ctx, interval)
}
