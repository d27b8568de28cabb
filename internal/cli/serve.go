package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"task-manager/internal/config"
	"task-manager/internal/logger"
	"task-manager/internal/manager"
	"task-manager/internal/server"
	"task-manager/internal/storage"
	"task-manager/internal/token"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if port != "" {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	codec, err := token.NewCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, atLeast(cfg.Storage.OpTimeout*3, 10*time.Second))
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		return err
	}

	router := server.NewRouter(server.Deps{
		Tasks:       manager.NewTaskManager(store, cfg.Storage.OpTimeout),
		Users:       manager.NewUserManager(store, codec),
		Tokens:      codec,
		Health:      store,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	logger.Info(ctx, "storage ready", "driver", cfg.Storage.Driver, "database", cfg.Storage.Database)
	return server.Run(ctx, server.New(cfg.Server, router), cfg.Server.ShutdownTimeout)
}

// openStorage connects the configured engine.
func openStorage(ctx context.Context, sc config.StorageConfig) (storage.Storage, error) {
	switch sc.Driver {
	case config.DriverMongo:
		connCtx, cancel := context.WithTimeout(ctx, atLeast(sc.OpTimeout*2, 5*time.Second))
		defer cancel()
		return storage.NewMongoStorage(connCtx, sc.StorageURI(), sc.Database)
	case config.DriverSQLite:
		return storage.NewSQLiteStorage(sc.StorageURI())
	case config.DriverPostgres:
		return storage.NewPostgresStorage(sc.StorageURI())
	case config.DriverMemory:
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", sc.Driver)
}

func atLeast(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}
