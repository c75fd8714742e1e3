package main

import (
	"github.com/smallbiznis/receiptpoints/internal/clock"
	"github.com/smallbiznis/receiptpoints/internal/config"
	"github.com/smallbiznis/receiptpoints/internal/idgen"
	"github.com/smallbiznis/receiptpoints/internal/observability"
	"github.com/smallbiznis/receiptpoints/internal/ratelimit"
	"github.com/smallbiznis/receiptpoints/internal/receipt"
	"github.com/smallbiznis/receiptpoints/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		idgen.Module,
		ratelimit.Module,

		// Receipts
		receipt.Module,
		server.Module,
	).Run()
}
