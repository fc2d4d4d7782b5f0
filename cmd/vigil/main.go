package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/vigil/internal/api"
	"github.com/nidhogg/vigil/internal/attention"
	"github.com/nidhogg/vigil/internal/circadian"
	"github.com/nidhogg/vigil/internal/clock"
	"github.com/nidhogg/vigil/internal/config"
	"github.com/nidhogg/vigil/internal/decision"
	"github.com/nidhogg/vigil/internal/notify"
	"github.com/nidhogg/vigil/internal/pipeline"
	"github.com/nidhogg/vigil/internal/schedule"
	"github.com/nidhogg/vigil/internal/sink"
	"github.com/nidhogg/vigil/internal/statestore"
	"github.com/nidhogg/vigil/internal/timelog"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Vigil...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/vigil.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	if cfg.Server.LogLevel == "production" {
		prod, perr := zap.NewProduction()
		if perr == nil {
			logger = prod
			defer logger.Sync()
		}
	}

	clk := clock.System()

	// Durable state store: Redis if configured, local files otherwise.
	var store statestore.Store
	if cfg.Database.Redis.URL != "" {
		rs, rerr := statestore.NewRedisStore(cfg.Database.Redis.URL, "", logger)
		if rerr != nil {
			logger.Warn("Redis unavailable, falling back to file state", zap.Error(rerr))
		} else {
			store = rs
			defer rs.Close()
			logger.Info("Redis state store initialized")
		}
	}
	if store == nil {
		stateDir := cfg.Pipeline.StateDir
		if stateDir == "" {
			stateDir = "state"
		}
		fs, ferr := statestore.NewFileStore(stateDir, logger)
		if ferr != nil {
			logger.Fatal("failed to create file state store", zap.Error(ferr))
		}
		store = fs
		logger.Info("File state store initialized", zap.String("dir", stateDir))
	}

	// Habituation filter
	filter := attention.NewFilter(attention.Config{
		Cooldown:       time.Duration(cfg.Filter.CooldownSeconds) * time.Second,
		Window:         time.Duration(cfg.Filter.WindowSeconds) * time.Second,
		HabituateCount: cfg.Filter.HabituateCount,
		HabituatedMult: cfg.Filter.HabituatedMult,
		OrientingMult:  cfg.Filter.OrientingMult,
		BaseThreshold:  cfg.Filter.BaseThreshold,
	}, clk, logger)

	// Decision router with configured idle activities
	var activities []decision.Activity
	for _, a := range cfg.Activities {
		activities = append(activities, decision.Activity{
			Name:        a.Name,
			Description: a.Description,
			Weight:      a.Weight,
		})
	}
	router := decision.NewRouter(activities, rand.New(rand.NewSource(time.Now().UnixNano())), logger)

	// Periodic scheduler with restart-safe state
	sched := schedule.New(store, cfg.Scheduler.StateKey, clk, logger)

	// Circadian rhythm
	rhythm := circadian.New(store, clk, logger)

	// Notification mailbox with optional chat delivery
	mailbox := notify.NewQueue(store, cfg.Notify.MaxQueue, logger)
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		mailbox.AddSink(sink.NewSlackSink(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.ChannelID, logger))
		logger.Info("Slack sink registered")
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		ds, derr := sink.NewDiscordSink(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if derr != nil {
			logger.Warn("Discord sink unavailable", zap.Error(derr))
		} else {
			mailbox.AddSink(ds)
			defer ds.Close()
			logger.Info("Discord sink registered")
		}
	}

	// Timelog requires Postgres; run without it when absent.
	var tlog *timelog.Log
	if cfg.Database.Postgres.DSN != "" {
		tl, terr := timelog.New(cfg.Database.Postgres.DSN, clk, logger)
		if terr != nil {
			logger.Warn("PostgreSQL unavailable, running without timelog", zap.Error(terr))
		} else {
			if merr := tl.Migrate(context.Background(), "migrations"); merr != nil {
				logger.Fatal("migration failed", zap.Error(merr))
			}
			tlog = tl
			defer tl.Close()
		}
	}

	// Assemble the pipeline and its standing maintenance tasks.
	pipe := pipeline.New(filter, router, sched, rhythm, mailbox, tlog, logger)

	circadianEvery := time.Duration(cfg.Scheduler.CircadianCheckSeconds) * time.Second
	if circadianEvery <= 0 {
		circadianEvery = 5 * time.Minute
	}
	summaryEvery := time.Duration(cfg.Scheduler.SummaryIntervalSeconds) * time.Second
	if summaryEvery <= 0 {
		summaryEvery = 24 * time.Hour
	}
	pipe.RegisterBuiltinTasks(circadianEvery, summaryEvery)

	tickEvery := time.Duration(cfg.Pipeline.TickSeconds) * time.Second
	if tickEvery <= 0 {
		tickEvery = 10 * time.Second
	}
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go pipe.Run(loopCtx, tickEvery)

	// Build HTTP handler
	handler := api.NewHandler(pipe, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Vigil listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Vigil...")
	stopLoop()
	srv.Shutdown(context.Background())
}
