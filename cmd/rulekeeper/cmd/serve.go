package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/solatis/rulekeeper/internal/core/api"
	"github.com/solatis/rulekeeper/internal/core/metrics"
	"github.com/solatis/rulekeeper/internal/core/ruleset"
	"github.com/solatis/rulekeeper/internal/core/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC rule service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Int("metrics-port", 9090, "Prometheus metrics port (0 disables)")
	serveCmd.Flags().String("rules", "", "rule file served when a request carries no rules")
	serveCmd.Flags().Bool("watch", true, "reload the rule file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("metrics-port") {
		cfg.Server.MetricsPort, _ = flags.GetInt("metrics-port")
	}
	if flags.Changed("rules") {
		cfg.Rules.Path, _ = flags.GetString("rules")
	}
	if flags.Changed("watch") {
		cfg.Rules.Watch, _ = flags.GetBool("watch")
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(nil)
	engine, err := newEngine(cfg, logger, collector)
	if err != nil {
		return err
	}

	opts := []api.ServiceOption{
		api.WithLogger(logger),
		api.WithMetrics(collector),
		api.WithDefaultMode(cfg.Engine.Mode),
		api.WithTimeout(cfg.Server.RequestTimeout),
		api.WithCompileOptions(compileOptions(cfg)...),
	}

	if cfg.Rules.Path != "" {
		store, err := ruleset.NewStore(cfg.Rules.Path,
			ruleset.WithLogger(logger),
			ruleset.WithCompileOptions(compileOptions(cfg)...))
		if err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		logger.Info("rules loaded", "path", store.Path(), "count", len(store.Rules()))
		opts = append(opts, api.WithRuleSource(store))

		if cfg.Rules.Watch {
			go func() {
				if err := store.Watch(ctx); err != nil {
					logger.Error("rule watcher exited", "error", err)
				}
			}()
		}
	}

	if cfg.DB.URL != "" {
		database, log, err := openDecisionLog(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		opts = append(opts, api.WithDecisionRecorder(log))
	}

	service, err := api.NewService(engine, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 2)
	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsPort != 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
		metricsServer = server.NewMetricsServer(addr, collector.Handler(), logger)
		go func() {
			errChan <- metricsServer.Start()
		}()
	}

	logger.Info("starting RuleKeeper", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
