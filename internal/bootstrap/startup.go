package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/crypto"
)

// VerifyStartup proves the process can actually serve token operations
// before it starts accepting traffic. A wrong or rotated encryption secret
// fails here instead of on the first dashboard request.
func VerifyStartup(lc fx.Lifecycle, cfg config.Config, vault *crypto.Vault, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return verifyStartup(ctx, cfg, vault, pool, logger)
		},
	})
}

func verifyStartup(ctx context.Context, cfg config.Config, vault *crypto.Vault, pool *pgxpool.Pool, logger *zap.Logger) error {
	const probe = "startup-probe"

	envelope, err := vault.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("startup encrypt probe: %w", err)
	}
	decrypted, err := vault.Decrypt(envelope)
	if err != nil {
		return fmt.Errorf("startup decrypt probe: %w", err)
	}
	if decrypted != probe {
		return fmt.Errorf("startup crypto probe mismatch")
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("startup database ping: %w", err)
	}

	if logger != nil {
		logger.Info("startup checks passed",
			zap.String("environment", cfg.Environment),
			zap.String("service", cfg.ServiceName),
		)
	}
	return nil
}
