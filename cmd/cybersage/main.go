// Command cybersage runs security-assessment workflows. It executes the
// workflow definition files given on the command line and, if the
// configuration declares schedules, keeps running them periodically.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/Rick1330/cybersage/internal/audit"
	"github.com/Rick1330/cybersage/internal/config"
	"github.com/Rick1330/cybersage/internal/contextstore"
	"github.com/Rick1330/cybersage/internal/orchestrator"
	"github.com/Rick1330/cybersage/internal/scheduler"
	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/tool/builtins"
	"github.com/Rick1330/cybersage/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	registry := tool.NewRegistry()
	for _, t := range []tool.Tool{
		builtins.NewNmapTool(),
		builtins.NewWhoisTool(),
		builtins.NewShodanTool(os.Getenv("SHODAN_API_KEY")),
		builtins.NewVirusTotalTool(os.Getenv("VT_API_KEY")),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	store, closeStore := buildStore(cfg)
	defer closeStore()

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	orch := orchestrator.New(registry,
		orchestrator.WithLogger(logger),
		orchestrator.WithContextStore(store),
		orchestrator.WithAuditSink(sink),
		orchestrator.WithStepDefaults(workflow.StepDefaults{
			RetryCount: cfg.Engine.DefaultRetryCount,
			Timeout:    cfg.Engine.DefaultTimeout,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot runs for definitions named on the command line.
	for _, path := range flag.Args() {
		def, err := workflow.LoadDefinition(path)
		if err != nil {
			return err
		}
		w, err := orch.Create(def)
		if err != nil {
			return err
		}
		if _, err := orch.Start(ctx, w.ID); err != nil {
			return err
		}
		logger.Info("workflow finished", "workflow_id", w.ID, "name", w.Name)
	}

	if len(cfg.Schedules) == 0 {
		return nil
	}

	sched := scheduler.New(orch, scheduler.WithLogger(logger))
	for _, sc := range cfg.Schedules {
		def, err := workflow.LoadDefinition(sc.Workflow)
		if err != nil {
			return err
		}
		if err := sched.Add(scheduler.Entry{
			Name:       sc.Name,
			Spec:       sc.Cron,
			Definition: def,
		}); err != nil {
			return err
		}
	}

	sched.Start()
	logger.Info("scheduler running", "schedules", len(cfg.Schedules))
	<-ctx.Done()

	sched.Stop()
	orch.Wait()
	return nil
}

func buildStore(cfg *config.Config) (contextstore.Store, func()) {
	if !cfg.Redis.Enabled {
		return contextstore.NewMemoryStore(contextstore.WithTTL(cfg.Engine.ContextTTL)), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := contextstore.NewRedisStore(client, contextstore.WithRedisTTL(cfg.Engine.ContextTTL))
	return store, func() { client.Close() }
}

func buildSink(cfg *config.Config, logger *slog.Logger) (audit.Sink, func(), error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		sqlite, err := audit.OpenSQLiteSink(cfg.Audit.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return audit.NewMultiSink(sqlite, audit.NewSlogSink(logger)), func() { sqlite.Close() }, nil
	case "none":
		return audit.NopSink{}, func() {}, nil
	default:
		return audit.NewSlogSink(logger), func() {}, nil
	}
}
