package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/creatorpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger) *CloudMetrics {
		if !cfg.MetricsPush.Enabled {
			return nil
		}
		return New(registry, pusher, cfg.MetricsPush.InstanceID, cfg.AppVersion, logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, c *CloudMetrics, logger *zap.Logger, db *gorm.DB) {
		if c == nil {
			return
		}

		if logger == nil {
			logger = zap.NewNop()
		}

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting metrics push background worker")
				go func() {
					ticker := time.NewTicker(30 * time.Minute)
					defer ticker.Stop()

					// Initial push
					updateSystemMetrics(c)
					updateAccountingCounts(ctx, c, db)
					if err := c.Push(ctx); err != nil {
						logger.Error("initial metrics push failed", zap.Error(err))
					}

					for {
						select {
						case <-ticker.C:
							updateSystemMetrics(c)
							updateAccountingCounts(ctx, c, db)
							if err := c.Push(ctx); err != nil {
								logger.Error("periodic metrics push failed", zap.Error(err))
							}
						case <-ctx.Done():
							logger.Info("stopping metrics push background worker")
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)

func updateSystemMetrics(c *CloudMetrics) {
	if c == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.SetMemoryUsage(m.Sys)
}

func updateAccountingCounts(ctx context.Context, c *CloudMetrics, db *gorm.DB) {
	if c == nil || db == nil {
		return
	}

	var creators int64
	if err := db.WithContext(ctx).Table("creators").Count(&creators).Error; err == nil {
		c.SetCreatorsTotal(creators)
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).Table("payment_requests").
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	c.SetPaymentRequests(counts)
}
