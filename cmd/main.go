package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"companion-relay/internal/app"
	"companion-relay/internal/config"
	"companion-relay/internal/integrations/paramstore"
	"companion-relay/internal/repository"
	"companion-relay/pkg/logger"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Secrets ----
	if cfg.UsesParamStore() {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			log.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		if cfg, err = app.ResolveSecrets(ctx, cfg, ssmClient, log); err != nil {
			log.Error("failed to resolve secrets", "err", err)
			os.Exit(1)
		}
	}

	// ---- Clients ----
	entitlements, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.EntitlementTable)
	if err != nil {
		log.Error("failed to create entitlement client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h, err := app.New(cfg, entitlements, log, reg)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		log.Info("starting lambda handler", "variant", cfg.Variant)
		lambda.Start(h.Handle)
		return
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := serve(sigCtx, net.JoinHostPort("", cfg.Port), h.Router(), log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is running", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
