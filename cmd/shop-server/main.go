package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/hivemarket/honeyshop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		lg.Info("starting honeyshop",
			zap.String("addr", cfg.Addr),
			zap.Int64("discount_percent", cfg.Discount.Percent),
			zap.Bool("strict_confirm", cfg.Fulfillment.ConfirmRequiresReceipt),
			zap.Bool("audit_enabled", cfg.AuditPath != ""),
		)
		return appkg.Run(ctx, lg, m, cfg)
	})
}
