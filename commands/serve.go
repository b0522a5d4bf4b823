package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yeremiapane/neighborhood-grub/config"
	"github.com/yeremiapane/neighborhood-grub/database"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/idempotency"
	"github.com/yeremiapane/neighborhood-grub/kds"
	"github.com/yeremiapane/neighborhood-grub/router"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// grub serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := boot()
	if err != nil {
		return err
	}
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	locker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}

	publishers := events.Fanout{kds.Default()}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL, events.DefaultSubjectPrefix)
		if err != nil {
			return err
		}
		defer np.Close()
		publishers = append(publishers, np)
		utils.InfoLogger.WithField("url", cfg.NATSURL).Info("publishing domain events to NATS")
	}

	store, err := idempotency.Open(cfg.IdempotencyPath, idempotencyTTL)
	if err != nil {
		return err
	}
	defer store.Close()
	go purgeLoop(ctx, store)

	market := services.NewMarket(db, services.Options{
		Policy:    &cfg.Policy,
		Locker:    locker,
		Publisher: publishers,
	})

	r := router.SetupRouter(router.Deps{
		Market:      market,
		Hub:         kds.Default(),
		Idempotency: store,
		CORSOrigin:  cfg.CORSOrigin,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.InfoLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLocker(ctx context.Context, cfg *config.Config) (services.Locker, error) {
	if cfg.RedisAddr == "" {
		return services.NewMemoryLocker(cfg.LockWait), nil
	}
	rdb, err := services.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.WithField("addr", cfg.RedisAddr).Info("using redis listing locks")
	return services.NewRedisLocker(rdb, cfg.LockWait, 30*time.Second), nil
}

func purgeLoop(ctx context.Context, store *idempotency.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge()
			if err != nil {
				utils.ErrorLogger.Errorf("idempotency purge failed: %v", err)
				continue
			}
			if n > 0 {
				utils.InfoLogger.Infof("purged %d expired idempotent responses", n)
			}
		}
	}
}
