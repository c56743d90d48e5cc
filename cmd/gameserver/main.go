// Package main provides the game server binary: the telnet acceptor, the
// session core, and their supporting services.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/chat"
	"github.com/cairnhall/takserver/internal/game/engine"
	"github.com/cairnhall/takserver/internal/game/rules"
	"github.com/cairnhall/takserver/internal/game/seek"
	"github.com/cairnhall/takserver/internal/game/session"
	"github.com/cairnhall/takserver/internal/gameserver"
	"github.com/cairnhall/takserver/internal/identity"
	"github.com/cairnhall/takserver/internal/observability"
	"github.com/cairnhall/takserver/internal/rating"
	"github.com/cairnhall/takserver/internal/server"
	"github.com/cairnhall/takserver/internal/storage/postgres"
	"github.com/cairnhall/takserver/internal/telnet"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("server", cfg.Server.Name),
		zap.String("telnet_addr", cfg.Telnet.Addr()),
	)

	// Board presets
	presets := game.DefaultPresets()
	if cfg.Game.PresetsPath != "" {
		presets, err = game.LoadPresetsFromFile(cfg.Game.PresetsPath)
		if err != nil {
			logger.Fatal("loading board presets", zap.Error(err))
		}
	}
	logger.Info("board presets loaded", zap.Ints("sizes", presets.Sizes()))

	// Rules engine
	var rulesEngine rules.Engine = rules.Permissive{}
	if cfg.Game.RulesScript != "" {
		luaEngine, err := rules.NewLuaEngine(cfg.Game.RulesScript, rules.DefaultInstructionLimit, observability.Named(logger, "rules"))
		if err != nil {
			logger.Fatal("loading rules script", zap.Error(err))
		}
		defer luaEngine.Close()
		rulesEngine = luaEngine
		logger.Info("rules script loaded", zap.String("path", cfg.Game.RulesScript))
	}

	// PostgreSQL
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	acctRepo := pool.Accounts()
	gameRepo := pool.Games()

	// Redis completion stream
	publisher, err := rating.NewPublisher(cfg.Redis, observability.Named(logger, "rating"))
	if err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}
	defer publisher.Close()

	// Session core
	verifier := identity.NewVerifier(acctRepo, cfg.Identity, observability.Named(logger, "identity"))
	sessions := session.NewManager(observability.Named(logger, "sessions"))
	seeks := seek.NewRegistry(presets, observability.Named(logger, "seeks"))
	rooms := chat.NewManager(observability.Named(logger, "chat"))

	handler := gameserver.NewHandler(gameserver.Deps{
		Config:     cfg.Game,
		ServerName: cfg.Server.Name,
		Verifier:   verifier,
		Sessions:   sessions,
		Seeks:      seeks,
		Chat:       rooms,
		Store:      gameRepo,
		Accounts:   acctRepo,
		Publisher:  publisher,
		Logger:     observability.Named(logger, "dispatch"),
	})

	policy := engine.Policy{
		DisconnectGrace:        cfg.Game.DisconnectGrace,
		PauseClockOnDisconnect: cfg.Game.PauseClockOnDisconnect,
		PendingTimeout:         cfg.Game.PendingTimeout,
		RematchWindow:          cfg.Game.RematchWindow,
	}
	games := engine.NewManager(rulesEngine, presets, policy, handler.HandleEvent, observability.Named(logger, "games"))
	handler.AttachGames(games)

	acceptor := telnet.NewAcceptor(cfg.Telnet, handler, observability.Named(logger, "telnet"))
	maintenance := gameserver.NewMaintenance(handler, cfg.Game.LivenessWindow/4)

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("telnet", &server.FuncService{
		StartFn: func() error {
			return acceptor.ListenAndServe()
		},
		StopFn: func() {
			acceptor.Stop()
		},
	})

	lifecycle.Add("maintenance", maintenance)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("telnet_addr", fmt.Sprintf("%s:%d", cfg.Telnet.Host, cfg.Telnet.Port)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
