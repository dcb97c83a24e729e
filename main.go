package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bounty-escrow-system/config"
	"bounty-escrow-system/handlers"
	"bounty-escrow-system/logger"
	"bounty-escrow-system/middleware"
	"bounty-escrow-system/services"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bountyd",
		Short:        "Bounty escrow service",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the transfer dispatcher",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "dispatch",
			Short: "Deliver pending transfers once and exit",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return dispatchOnce(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "inspect <bounty-id>",
			Short: "Print a bounty and its transfers as JSON",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return inspect(cmd.Context(), args[0]) },
		},
	)
	return root
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(parent context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(kv)

	engine, err := newEngine(kv, cfg)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, probes aside
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger.Named("gateway"), handlers.OpenPaths...))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Caller-ID, X-Payment-Amount",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	bountyService := services.NewBountyService(engine, logger.Named("http"))
	handlers.SetupBountyRoutes(app, bountyService, logger.Named("http"))

	dispatcher, err := newDispatcher(ctx, engine, cfg)
	if err != nil {
		return err
	}
	var sched gocron.Scheduler
	if dispatcher != nil {
		if sched, err = dispatcher.Start(ctx); err != nil {
			return err
		}
		log.Info("✅ Transfer dispatcher running", zap.Duration("interval", cfg.DispatchInterval))
	} else {
		log.Warn("⚠️  LEDGER_URL not set, transfers stay queued in the outbox")
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	log.Info("✅ Server running", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
	log.Info("✅ GatewayAuthMiddleware enforced globally")
	log.Info("✅ CORS configured", zap.String("origins", allowedOrigins))

	<-ctx.Done()
	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			log.Error("dispatcher shutdown", zap.Error(err))
		}
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	return nil
}

func dispatchOnce(ctx context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(kv)

	engine, err := newEngine(kv, cfg)
	if err != nil {
		return err
	}
	dispatcher, err := newDispatcher(ctx, engine, cfg)
	if err != nil {
		return err
	}
	if dispatcher == nil {
		return fmt.Errorf("LEDGER_URL is required to dispatch transfers")
	}
	n, err := dispatcher.RunOnce(ctx)
	logger.L().Info("dispatch finished", zap.Int("delivered", n), zap.Error(err))
	return err
}

func inspect(ctx context.Context, arg string) error {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bounty id %q", arg)
	}
	cfg, err := setup()
	if err != nil {
		return err
	}
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(kv)

	engine, err := newEngine(kv, cfg)
	if err != nil {
		return err
	}
	b, err := engine.GetBounty(ctx, id)
	if err != nil {
		return err
	}
	transfers, err := engine.ListTransfers(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"bounty":    b,
		"transfers": transfers,
	})
}
