package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/xrp-pay/backend/internal/config"
	"github.com/zhouzirui/xrp-pay/backend/internal/handler"
	paymentHandler "github.com/zhouzirui/xrp-pay/backend/internal/handler/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
)

var (
	flagAddr    string
	flagEnvFile string
	flagConfig  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "xrp-pay",
		Short:         "XRP payment session backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides PORT")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "TOML config file, overrides CONFIG_FILE")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load(flagEnvFile)

	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger.Init(zl)
	defer logger.Sync()
	log := logger.S()

	if envErr != nil {
		log.Warnw("failed to load dotenv file, continuing with process environment", "file", flagEnvFile, "error", envErr)
	}

	store := payment.NewMemoryStore()
	settler := settlement.NewClient(settlement.Options{
		BaseURL:      cfg.Settlement.BaseURL,
		Timeout:      cfg.Settlement.Timeout,
		MaxRetries:   cfg.Settlement.MaxRetries,
		RetryWait:    cfg.Settlement.RetryWait,
		RetryMaxWait: cfg.Settlement.RetryMaxWait,
	}, log.Named("settlement"))

	svc := paymentService.NewService(store, settler, paymentService.Options{
		ReturnURL:         strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/xaman/callback?paymentUuid={id}",
		SettlementTimeout: cfg.Settlement.Timeout,
		TTL:               cfg.Session.TTL,
		OutcomeRetention:  cfg.Session.OutcomeRetention,
		DefaultFeeLeg:     cfg.Session.FeeLeg,
	}, log.Named("payment"))

	router := handler.NewRouter(handler.Deps{
		Payments: svc,
		Pages: paymentHandler.Pages{
			Success: cfg.Pages.SuccessPath,
			Failure: cfg.Pages.FailurePath,
			Pending: cfg.Pages.PendingPath,
		},
		CookieName:   cfg.Session.CookieName,
		PollInterval: cfg.Session.PollInterval,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.Std("http.server"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("payment backend listening",
			"addr", srv.Addr,
			"settlement", cfg.Settlement.BaseURL,
			"fee_leg", cfg.Session.FeeLeg,
		)
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx, cfg.Session.SweepInterval)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server stopped", "error", err)
		return err
	}
	log.Infow("server stopped", "live_payments", store.Len())
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
