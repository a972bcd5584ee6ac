package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lawnchairsociety/combatsim/internal/cache"
	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/config"
	"github.com/lawnchairsociety/combatsim/internal/database"
	"github.com/lawnchairsociety/combatsim/internal/export"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/loot"
	"github.com/lawnchairsociety/combatsim/internal/metrics"
	"github.com/lawnchairsociety/combatsim/internal/server"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "data/config.yaml", "Path to simulator config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	dataDir := flag.String("data", "data/gamedata", "Path to game data directory")
	scopeFlag := flag.String("scope", "all", "What to simulate: all, monster:ID, dungeon:ID or slayer:ID")
	exportPath := flag.String("export", "", "Write the result table as TSV to this file (- for stdout)")
	serve := flag.Bool("serve", false, "Run the HTTP/WebSocket API until interrupted")
	bench := flag.Int("bench", 0, "Repeat full simulations N times and log the time of each (-1 uses simulation.test_runs)")
	history := flag.Bool("history", false, "Record completed runs in the history database")
	purgeCache := flag.Bool("purge-cache", false, "Delete every cached simulation result from Redis and exit")
	hashToken := flag.String("hash-token", "", "Print the bcrypt hash of an API token for api.token_hash and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := server.HashToken(*hashToken)
		if err != nil {
			log.Fatalf("Failed to hash token: %v", err)
		}
		fmt.Println(hash)
		return 0
	}

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting combat simulator")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	data, err := gamedata.LoadFromDirectory(*dataDir)
	if err != nil {
		log.Fatalf("Failed to load game data: %v", err)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		logger.Info("Simulation seed selected", "seed", seed, "random", true)
	} else {
		logger.Info("Simulation seed selected", "seed", seed, "random", false)
	}

	redisClient := openCache(cfg.Cache)
	if redisClient != nil {
		defer redisClient.Close()
	}
	if *purgeCache {
		if redisClient == nil {
			logger.Error("Result cache is not available, nothing to purge")
			return 1
		}
		removed, err := cache.Purge(context.Background(), redisClient)
		if err != nil {
			logger.Error("Failed to purge result cache", "error", err)
			return 1
		}
		logger.Info("Result cache purged", "removed", removed)
		return 0
	}

	sched, err := simulation.NewScheduler(data, func(slot int) (simulation.Executor, error) {
		var exec simulation.Executor = combat.NewMonteCarlo(data, seed+int64(slot))
		if redisClient != nil {
			exec = cache.New(exec, redisClient, cfg.Cache.TTL)
		}
		return exec, nil
	}, simulation.Options{
		Workers: cfg.Simulation.Workers,
		Sim:     cfg.SimOptions(),
		Player:  cfg.Player,
		Filters: cfg.SimFilters(),
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	valuator := loot.NewValuator(data, cfg.LootSettings())
	sched.AddAnalyzer(valuator)
	if cfg.Metrics.Enabled {
		sched.SetObserver(metrics.Observer{})
		sched.AddListener(metrics.Listener{})
	}

	// The API can change settings at runtime; history then reads them through it
	var srv *server.Server
	fingerprint, runSettings := cfg.Fingerprint, cfg.RunSettings
	if *serve {
		srv = server.NewServer(cfg, data, sched)
		srv.SetValuator(valuator)
		fingerprint, runSettings = srv.Fingerprint, srv.RunSettings
	}

	var db *database.Database
	if *history || cfg.Database.Enabled {
		db, err = database.OpenWithConfig(cfg.Database.Config)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		logger.Info("Run history enabled", "driver", db.Dialect().DriverName(), "keep_runs", cfg.Database.KeepRuns)

		recorder := database.NewRecorder(db, data, database.RecorderOptions{
			Fingerprint: fingerprint,
			Settings:    runSettings,
			Keep:        cfg.Database.KeepRuns,
		})
		sched.AddListener(recorder)
		// Registered after db.Close so queued runs are written first
		defer recorder.Close()
	}

	summaries := make(chan simulation.Summary, 4)
	sched.AddListener(simulation.ListenerFuncs{
		OnProgress: func(p simulation.Progress) {
			logger.Debug("Simulation progress", "completed", p.Completed, "started", p.Started, "total", p.Total)
		},
		OnComplete: func(s simulation.Summary) {
			select {
			case summaries <- s:
			default:
			}
		},
	})

	sched.Start()
	defer sched.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if srv != nil {
		return serveAPI(srv, sched, db, sigChan)
	}

	testRuns := *bench
	if testRuns < 0 {
		testRuns = cfg.Simulation.TestRuns
	}

	var summary simulation.Summary
	if testRuns > 0 {
		if err := sched.RunTest(testRuns); err != nil {
			logger.Error("Failed to start test runs", "error", err)
			return 1
		}
		summary = waitForRuns(sched, summaries, sigChan, testRuns)
	} else {
		scope, err := simulation.ParseScope(*scopeFlag)
		if err != nil {
			logger.Error("Invalid scope", "scope", *scopeFlag, "error", err)
			return 2
		}
		notices, err := sched.EnqueueAndRun(scope)
		if err != nil {
			logger.Error("Failed to start run", "scope", scope.String(), "error", err)
			return 1
		}
		for _, n := range notices {
			logger.Warning("Simulation notice", "scope", scope.String(), "message", n.Message)
		}
		summary = waitForRuns(sched, summaries, sigChan, 0)
	}

	if *exportPath != "" {
		if err := writeExport(*exportPath, data, summary.Table, cfg); err != nil {
			logger.Error("Failed to export results", "path", *exportPath, "error", err)
			return 1
		}
		logger.Info("Results exported", "path", *exportPath)
	}
	if summary.Cancelled {
		return 130
	}
	return 0
}

// openCache connects to Redis when the cache is enabled. The simulator runs
// without a cache when Redis is unreachable.
func openCache(cfg cache.Config) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.NewClient(ctx, cfg)
	if err != nil {
		logger.Warning("Result cache unavailable, continuing without it", "addr", cfg.Addr, "error", err)
		return nil
	}
	logger.Info("Result cache enabled", "addr", cfg.Addr, "ttl", cfg.TTL)
	return client
}

// waitForRuns blocks until the run finishes, or the last of n test runs. The
// first interrupt cancels the run and waits for in-flight jobs.
func waitForRuns(sched *simulation.Scheduler, summaries <-chan simulation.Summary, sigChan <-chan os.Signal, n int) simulation.Summary {
	for {
		select {
		case s := <-summaries:
			// The next test run starts before Complete returns
			if n == 0 || s.TestRun >= n || s.Cancelled || !sched.InProgress() {
				return s
			}
		case sig := <-sigChan:
			logger.Info("Received signal, cancelling run", "signal", sig.String())
			if err := sched.Cancel(); err != nil {
				logger.Error("Failed to cancel run", "error", err)
			}
		}
	}
}

func serveAPI(srv *server.Server, sched *simulation.Scheduler, db *database.Database, sigChan <-chan os.Signal) int {
	if db != nil {
		srv.SetDatabase(db)
	}
	sched.AddListener(srv.Hub())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	code := 0
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("API server error", "error", err)
			code = 1
		}
	}

	if err := sched.Cancel(); err != nil {
		logger.Debug("Cancel on shutdown", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	return code
}

func writeExport(path string, data *gamedata.Data, table *simulation.Table, cfg *config.Config) error {
	if table == nil {
		return fmt.Errorf("no results to export")
	}

	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return export.WriteTSV(w, data, table, cfg.SimFilters(), cfg.Export)
}
