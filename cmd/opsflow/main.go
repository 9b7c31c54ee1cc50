// Command opsflow is an interactive operations assistant. It turns
// natural-language requests into plans of container and utility
// operations, executes them durably and prints the aggregated report.
//
// Usage:
//
//	opsflow                         # interactive prompt loop
//	opsflow -task "restart nginx"   # run one task and exit
//	opsflow -resume ops-<uuid>      # resume an interrupted run
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opsflow/opsflow/ai"
	"github.com/opsflow/opsflow/core"
	"github.com/opsflow/opsflow/dockerops"
	"github.com/opsflow/opsflow/orchestration"
	"github.com/opsflow/opsflow/resilience"
	"github.com/opsflow/opsflow/telemetry"
	"github.com/opsflow/opsflow/utility"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file (optional)")
		task       = flag.String("task", "", "run a single task and exit")
		resumeID   = flag.String("resume", "", "resume a previously checkpointed run by id")
	)
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opsflow: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Name, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracing(cfg.Name)
		if err != nil {
			logger.Warn("Tracing disabled", map[string]interface{}{
				"operation": "tracing_init",
				"error":     err.Error(),
			})
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	controller, store, err := buildController(cfg, logger)
	if err != nil {
		logger.Error("Startup failed", map[string]interface{}{
			"operation": "startup",
			"error":     err.Error(),
		})
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	switch {
	case *resumeID != "":
		run, err := controller.ResumeRun(ctx, *resumeID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opsflow: resuming run %s: %v\n", *resumeID, err)
			os.Exit(1)
		}
		fmt.Println(run.FinalReport)
	case *task != "":
		report, err := controller.SubmitTask(ctx, *task, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "opsflow: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(report)
	default:
		promptLoop(ctx, controller)
	}
}

// buildController wires the full operation stack: docker provider,
// utility providers, planner, catalog, executor, run store.
func buildController(cfg *core.Config, logger core.Logger) (*orchestration.RunController, orchestration.RunStore, error) {
	docker, err := dockerops.NewProvider(cfg.Docker.Host, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to docker: %w", err)
	}

	aiOpts := []ai.ClientOption{
		ai.WithModel(cfg.Planner.Model),
		ai.WithLogger(logger),
	}
	if cfg.Planner.BaseURL != "" {
		aiOpts = append(aiOpts, ai.WithBaseURL(cfg.Planner.BaseURL))
	}
	aiClient, err := ai.NewOpenAIClient(aiOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring planner: %w", err)
	}

	weather := utility.NewWeatherProvider(
		utility.WithWeatherBaseURL(cfg.Weather.BaseURL),
		utility.WithWeatherLogger(logger),
	)
	clock := utility.NewTimeProvider()
	facts := utility.NewFactProvider(aiClient, logger)

	catalog := orchestration.NewCatalog(orchestration.Handlers{
		ContainerStatus:  docker.Status,
		ContainerHealth:  docker.Health,
		ContainerLogs:    docker.Logs,
		ContainerRestart: docker.Restart,
		Time:             clock.CurrentTime,
		Weather:          weather.Weather,
		Fact:             facts.Fact,
	})

	executor := orchestration.NewStepExecutor(catalog)
	executor.SetLogger(logger)

	store, err := buildStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	planner := ai.NewLLMPlanner(aiClient, cfg.Planner.Model, catalog)
	planner.SetLogger(logger)

	controller := orchestration.NewRunController(planner, executor, store)
	controller.SetLogger(logger)
	controller.SetPlannerPolicy(cfg.Planner.Timeout, cfg.Planner.MaxAttempts)

	return controller, store, nil
}

func buildStore(cfg *core.Config, logger core.Logger) (orchestration.RunStore, error) {
	if cfg.Store.Provider != "redis" {
		return orchestration.NewMemoryRunStore(), nil
	}
	opts := []orchestration.RedisRunStoreOption{
		orchestration.WithRedisURL(cfg.Store.RedisURL),
		orchestration.WithRedisDB(cfg.Store.RedisDB),
		orchestration.WithStoreLogger(logger),
		orchestration.WithRunTTL(cfg.Store.TTL),
		orchestration.WithRunErrorTTL(cfg.Store.ErrorTTL),
	}
	if cfg.Store.CircuitBreaker {
		opts = append(opts, orchestration.WithCircuitBreaker(
			resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("run-store"), logger)))
	}
	return orchestration.NewRedisRunStore(opts...)
}

// promptLoop reads tasks from stdin until EOF, "quit" or cancellation.
func promptLoop(ctx context.Context, controller *orchestration.RunController) {
	fmt.Println("🤖 OpsFlow - container ops, logs, restarts, time, weather, facts")
	fmt.Println("Type a request, or 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			fmt.Println("Goodbye!")
			return
		}

		report, err := controller.SubmitTask(ctx, line, "")
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
				return
			}
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println("\n" + report)
	}
}
