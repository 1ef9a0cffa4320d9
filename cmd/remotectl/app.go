package main

import (
	"context"
	"fmt"
	"time"

	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/automation"
	"github.com/suPer8Hu/remote-control/internal/bot"
	"github.com/suPer8Hu/remote-control/internal/conversation"
	"github.com/suPer8Hu/remote-control/internal/db"
	"github.com/suPer8Hu/remote-control/internal/store"
	"github.com/suPer8Hu/remote-control/internal/store/redisstore"
	"github.com/suPer8Hu/remote-control/internal/telegram"
	"gorm.io/gorm"
)

const shutdownGrace = 10 * time.Second

// app is the dependency graph shared by serve and worker.
type app struct {
	db       *gorm.DB
	repo     *store.Repo
	telegram *telegram.Client
	service  *bot.Service
	closers  []func() error
}

func openStore() (*gorm.DB, *store.Repo, error) {
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, nil, err
	}
	return gdb, store.NewRepo(gdb), nil
}

func newApp(ctx context.Context) (*app, error) {
	if err := cfg.ValidateBot(); err != nil {
		return nil, err
	}

	gdb, repo, err := openStore()
	if err != nil {
		return nil, err
	}
	a := &app{db: gdb, repo: repo}
	a.closers = append(a.closers, func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	vars := map[string]string{"DEFAULT_BOARD_ID": cfg.DefaultBoardID}
	var flows []*conversation.Flow
	if cfg.FlowsFile != "" {
		flows, err = conversation.LoadFlowsFile(cfg.FlowsFile, vars)
	} else {
		flows, err = conversation.LoadBuiltinFlows(vars)
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load flows: %w", err)
	}
	registry, err := conversation.NewRegistry(flows...)
	if err != nil {
		a.Close()
		return nil, err
	}

	states, err := a.stateStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.telegram = telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramToken)
	gate := auth.NewGate(repo, repo, cfg.SessionDuration, cfg.JWTSecret, logger)

	a.service, err = bot.NewService(bot.Deps{
		Records:    repo,
		Gate:       gate,
		Flows:      registry,
		Automation: automation.NewClient(cfg.AutomationBaseURL, cfg.AutomationTimeout, cfg.AutomationPingTimeout),
		States:     states,
		Replier:    a.telegram,
		Options: bot.Options{
			CancelKeyword: cfg.CancelKeyword,
			SkipSentinel:  cfg.SkipSentinel,
			VerboseHelp:   cfg.VerboseHelp,
			SessionTTL:    cfg.SessionDuration,
		},
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	names := make([]string, 0, len(flows))
	for _, f := range registry.Flows() {
		names = append(names, f.Command)
	}
	logger.Info("bot ready", "flows", names, "state_store", stateBackend(), "version", version)
	return a, nil
}

// stateStore uses Redis when configured so several processes share conversation state.
func (a *app) stateStore(ctx context.Context) (bot.StateStore, error) {
	if cfg.RedisAddr == "" {
		if cfg.RabbitURL != "" {
			logger.Warn("RABBIT_URL is set without REDIS_ADDR; conversation state is not shared between processes")
		}
		return bot.NewMemoryStateStore(cfg.ChatStateTTL), nil
	}
	rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ChatStateTTL)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.closers = append(a.closers, rs.Close)
	return rs, nil
}

func stateBackend() string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}
