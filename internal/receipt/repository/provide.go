package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/receiptpoints/internal/config"
	"github.com/smallbiznis/receiptpoints/internal/receipt/domain"
	"github.com/smallbiznis/receiptpoints/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Config config.Config
	Log    *zap.Logger
}

// Provide builds the registry selected by REGISTRY_BACKEND.
func Provide(p Params) (domain.Repository, error) {
	log := p.Log.Named("receipt.repository")

	switch p.Config.RegistryBackend {
	case config.RegistryBackendMemory, "":
		log.Info("using in-memory receipt registry")
		return NewMemory(), nil
	case config.RegistryBackendSQLite:
		conn, err := db.Open(db.Config{
			DSN:         p.Config.RegistryDSN,
			Name:        "receipts",
			MaxOpenConn: 1,
			Instrument:  true,
		}, p.Log)
		if err != nil {
			return nil, err
		}
		p.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				log.Info("closing receipt registry")
				return db.Close(conn)
			},
		})
		log.Info("using sqlite receipt registry")
		return NewGorm(conn)
	default:
		return nil, fmt.Errorf("unsupported registry backend %q", p.Config.RegistryBackend)
	}
}
