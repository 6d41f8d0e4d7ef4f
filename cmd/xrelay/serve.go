package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xrelay/internal/server"
	"xrelay/pkg/audit"
	"xrelay/pkg/config"
	"xrelay/pkg/logger"
	"xrelay/pkg/metrics"
	"xrelay/pkg/queryid"
	"xrelay/pkg/ratelimit"
	"xrelay/pkg/relay"
	"xrelay/pkg/xcom"
)

var insecureHTTP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay server.

The listener is TLS-only: server.tls_cert_file and server.tls_key_file
must point at usable material. For local development only, --insecure-http
allows a plaintext listener.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&insecureHTTP, "insecure-http", false, "serve plaintext HTTP (development only)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if insecureHTTP {
		cfg.Server.AllowInsecureHTTP = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("xrelay starting")

	if err := metrics.Register(nil); err != nil {
		log.WithError(err).Fatal("Failed to register metrics")
	}

	sink, err := audit.NewSink(&cfg.Audit)
	if err != nil {
		log.WithError(err).Fatal("Failed to open audit sink")
	}
	defer sink.Close()

	registry, err := queryid.NewRegistry(&cfg.QueryIDs)
	if err != nil {
		log.WithError(err).Fatal("Failed to build query id registry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StaticQueryIDs() {
		log.Info("Query ids pinned by configuration; refresher disabled")
	} else {
		refresher, err := queryid.NewRefresher(registry, cfg.Upstream.BaseURL, cfg.QueryIDs.RefreshInterval)
		if err != nil {
			log.WithError(err).Fatal("Failed to build query id refresher")
		}
		go refresher.Run(ctx)
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if rpm := cfg.Relay.RequestsPerMinute; rpm > 0 {
		limiter = ratelimit.NewTokenBucket(rpm, time.Minute)
	}

	client := xcom.NewClient(&cfg.Upstream, registry, log)
	svc := relay.NewService(client, sink, limiter, &cfg.Relay, log)
	srv := server.New(&cfg.Server, svc, log)

	log.WithFields(map[string]interface{}{
		"addr":           cfg.Server.Addr,
		"max_batch_size": cfg.Relay.MaxBatchSize,
		"audit_backend":  cfg.Audit.Backend,
	}).Info("Relay configured")

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
}
