package main

import (
	"context"
	"time"

	"Meridian/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartTablePersistCron periodically snapshots the region table into the
// shared store. The health-check loop already persists on transitions; this
// job covers the steady state so a coordinator joining after a long quiet
// period still finds a recent table.
func StartTablePersistCron(coord *biz.RegionCoordinator, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	// Every minute, on the minute.
	_, err := c.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := coord.PersistTable(ctx); err != nil {
			helper.Errorw("region table persistence job failed", "error", err)
		}
	})

	if err != nil {
		helper.Errorw("failed to register table persistence cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("region table persistence job started: runs every minute")

	return c
}
