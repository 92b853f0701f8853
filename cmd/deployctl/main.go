package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"deployctl/internal/audit"
	"deployctl/internal/config"
	"deployctl/internal/containerbuild"
	"deployctl/internal/coordinator"
	"deployctl/internal/eventbus"
	"deployctl/internal/healthprobe"
	"deployctl/internal/lock"
	"deployctl/internal/logger"
	"deployctl/internal/model"
	"deployctl/internal/phases"
	"deployctl/internal/ports"
	"deployctl/internal/queue"
	"deployctl/internal/remoteexec"
	"deployctl/internal/rollout"
	"deployctl/internal/scanner"
	"deployctl/internal/store"
	"deployctl/internal/vcs"
	"deployctl/internal/worker"
)

func main() {
	app := &cli.App{
		Name:    "deployctl",
		Usage:   "Autonomous deployment orchestrator - clone, scan, build, and roll out services",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Start a worker pool that drains the deployment queue for one environment",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "environment",
						Usage:   "Environment this worker pool serves (staging, production, preview)",
						Value:   "staging",
						EnvVars: []string{"DEPLOYCTL_ENVIRONMENT"},
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Number of concurrent worker goroutines",
						Value:   4,
						EnvVars: []string{"DEPLOYCTL_WORKERS"},
					},
				},
				Action: runWorker,
			},
			{
				Name:  "submit",
				Usage: "Submit a new deployment job to the queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "repository", Required: true, EnvVars: []string{"DEPLOYCTL_REPOSITORY"}},
					&cli.StringFlag{Name: "ref", Value: "main"},
					&cli.StringFlag{Name: "instance-id", Required: true},
					&cli.StringFlag{Name: "environment", Value: "staging"},
					&cli.StringFlag{Name: "strategy", Value: "rolling"},
					&cli.IntFlag{Name: "port", Value: 8080},
					&cli.StringFlag{Name: "health-path", Value: "/healthz"},
				},
				Action: runSubmit,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runWorker wires every port to its production adapter and runs a pool of
// worker.Worker instances against one environment's queue until a shutdown
// signal arrives.
func runWorker(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, log := logger.PrepareLogger(ctx)
	defer logger.Sync(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, draining in-flight deployments")
		cancel()
	}()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	auditGateway, err := audit.New(st, nil)
	if err != nil {
		return fmt.Errorf("constructing audit gateway: %w", err)
	}
	bus := eventbus.New(cfg.Events.SubscriberBuffer, auditGateway)
	publisher := eventbus.NewPublisher(bus)

	lockBackend, err := buildLockBackend(cfg)
	if err != nil {
		return fmt.Errorf("constructing lock backend: %w", err)
	}
	queueBackend, err := buildQueueBackend(cfg)
	if err != nil {
		return fmt.Errorf("constructing queue backend: %w", err)
	}
	q := queue.New(queueBackend, queue.Config{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxRetries:        cfg.Queue.MaxRetries,
		PriorityBands:     cfg.Queue.PriorityBands,
	})

	coord, err := buildCoordinator(cfg, st, publisher)
	if err != nil {
		return fmt.Errorf("constructing coordinator: %w", err)
	}

	environment := c.String("environment")
	numWorkers := c.Int("workers")
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.Sugar().Infof("deployctl worker pool starting: environment=%s workers=%d", environment, numWorkers)

	done := make(chan struct{})
	for i := 0; i < numWorkers; i++ {
		w := &worker.Worker{
			Queue:       q,
			LockBackend: lockBackend,
			Coordinator: coord,
			Store:       st,
			Clock:       ports.NewSystemClock(),
			Config: worker.Config{
				Environment:  environment,
				LockTTL:      cfg.Lock.TTL,
				PollInterval: time.Second,
			},
		}
		go func(idx int) {
			w.Run(ctx)
			if idx == 0 {
				close(done)
			}
		}(i)
	}

	go sweepLoop(ctx, q, environment)

	<-ctx.Done()
	<-done
	log.Info("worker pool stopped")
	return nil
}

// sweepLoop periodically recovers entries abandoned by a dead worker back
// into the ready queue (§4.5's visibility-timeout sweeper).
func sweepLoop(ctx context.Context, q *queue.Queue, environment string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Sweep(ctx, environment)
		}
	}
}

func buildLockBackend(cfg config.Config) (lock.Backend, error) {
	if len(cfg.EtcdEndpoints) == 0 {
		return lock.NewMemoryBackend(), nil
	}
	return lock.NewEtcdBackend(lock.EtcdConfig{Endpoints: cfg.EtcdEndpoints, DialTimeout: 5 * time.Second})
}

func buildQueueBackend(cfg config.Config) (queue.Backend, error) {
	if cfg.RedisAddr == "" {
		return queue.NewMemoryBackend(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return queue.NewRedisBackend(client), nil
}

// buildCoordinator assembles the Security/Build/Deploy phase executors over
// their production ports and the two Deployer strategies, wiring everything
// through the same eventbus.Publisher so every event carries a durable seq.
func buildCoordinator(cfg config.Config, st ports.Store, publisher *eventbus.Publisher) (*coordinator.Coordinator, error) {
	gitVCS := vcs.New()
	trivy, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("constructing scanner: %w", err)
	}
	builder, err := containerbuild.New()
	if err != nil {
		return nil, fmt.Errorf("constructing container builder: %w", err)
	}
	executor, err := remoteexec.NewDocker()
	if err != nil {
		return nil, fmt.Errorf("constructing remote executor: %w", err)
	}
	prober := healthprobe.New()
	clock := ports.NewSystemClock()

	scratchRoot := os.TempDir()

	security := &phases.SecurityPhase{
		VCS:     gitVCS,
		Scanner: trivy,
		Store:   st,
		Clock:   clock,
		Events:  publisher,
		Config: phases.SecurityConfig{
			Policy:   model.SecurityPolicy(cfg.Security.Policy),
			MaxHigh:  cfg.Security.MaxHigh,
			Timeout:  cfg.Security.Timeout,
			SkipDirs: cfg.Security.SkipDirs,
		},
		ScratchRoot: scratchRoot,
	}

	build := &phases.BuildPhase{
		VCS:     gitVCS,
		Builder: builder,
		Store:   st,
		Clock:   clock,
		Events:  publisher,
		Config: phases.BuildConfig{
			Timeout:          cfg.Build.Timeout,
			BaseImageRetries: cfg.Build.BaseImageRetries,
			BaseImageBackoff: 15 * time.Second,
			LogLineRateLimit: cfg.Build.LogLineRateLimit,
		},
		ScratchRoot: scratchRoot,
	}

	deps := rollout.Deps{Executor: executor, Prober: prober, Events: publisher, Clock: clock}
	window := rollout.HealthWindowConfig{
		Interval:               cfg.Deploy.HealthInterval,
		SampleCount:            cfg.Deploy.HealthSamples,
		MinSuccessCount:        cfg.Deploy.MinSuccess,
		MaxConsecutiveFailures: cfg.Deploy.MaxConsecutiveFailures,
	}

	canaryStages := make([]rollout.CanaryStage, 0, len(cfg.Canary.Stages))
	for _, s := range cfg.Canary.Stages {
		canaryStages = append(canaryStages, rollout.CanaryStage{Weight: s.Weight, Duration: s.Duration})
	}

	deploy := &phases.DeployPhase{
		Deployers: map[model.Strategy]rollout.Deployer{
			model.StrategyRolling: rollout.NewRollingDeployer(deps, window, cfg.Deploy.StopTimeout),
			model.StrategyCanary:  rollout.NewCanaryDeployer(deps, window, cfg.Deploy.StopTimeout, canaryStages, cfg.Canary.ErrorRateThreshold),
		},
		Store:  st,
		Clock:  clock,
		Events: publisher,
	}

	return &coordinator.Coordinator{
		Security: security,
		Build:    build,
		Deploy:   deploy,
		Store:    st,
		Clock:    clock,
		Events:   publisher,
	}, nil
}

func runSubmit(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	queueBackend, err := buildQueueBackend(cfg)
	if err != nil {
		return fmt.Errorf("constructing queue backend: %w", err)
	}
	q := queue.New(queueBackend, queue.Config{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxRetries:        cfg.Queue.MaxRetries,
		PriorityBands:     cfg.Queue.PriorityBands,
	})

	job := model.DeploymentJob{
		Repository:  c.String("repository"),
		Ref:         c.String("ref"),
		InstanceID:  c.String("instance-id"),
		Environment: model.Environment(c.String("environment")),
		Strategy:    model.Strategy(c.String("strategy")),
		Port:        c.Int("port"),
		HealthPath:  c.String("health-path"),
		TriggeredBy: model.TriggeredByCLI,
	}

	deploymentID, err := worker.Submit(ctx, q, job, time.Now())
	if err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}
	fmt.Printf("submitted deployment %s for %s@%s -> %s\n", deploymentID, job.Repository, job.Ref, job.InstanceID)
	return nil
}

func runMigrate(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	fmt.Printf("migrations applied against %s\n", cfg.Database)
	return nil
}
