package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/channel/inbound"
	"github.com/loubnaelmalali29-code/chip/internal/chat"
	"github.com/loubnaelmalali29-code/chip/internal/config"
	"github.com/loubnaelmalali29-code/chip/internal/dedup"
	"github.com/loubnaelmalali29-code/chip/internal/handlers"
	channelchecker "github.com/loubnaelmalali29-code/chip/internal/healthcheck/checkers/channel"
	storechecker "github.com/loubnaelmalali29-code/chip/internal/healthcheck/checkers/store"
	"github.com/loubnaelmalali29-code/chip/internal/logger"
	"github.com/loubnaelmalali29-code/chip/internal/normalize"
	"github.com/loubnaelmalali29-code/chip/internal/reply"
	"github.com/loubnaelmalali29-code/chip/internal/server"
	"github.com/loubnaelmalali29-code/chip/internal/tracing"
	"github.com/loubnaelmalali29-code/chip/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideNormalizer,
			provideDedupStore,
			provideDeduplicator,
			provideChatProvider,
			provideChannelRegistry,
			provideOrchestrator,
			provideProcessor,
			provideServerHandler(handlers.NewWebhookHandler),
			provideServerHandler(handlers.NewSendHandler),
			provideServerHandler(providePingHandler),
			provideServer,
		),
		fx.Invoke(
			startTracing,
			startDedupSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	return loadConfig()
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideNormalizer(log *slog.Logger, cfg config.Config) (*normalize.Normalizer, error) {
	if cfg.Normalize.CorrectionsFile == "" {
		return normalize.Default(), nil
	}
	extra, err := normalize.LoadCorrectionsFile(cfg.Normalize.CorrectionsFile)
	if err != nil {
		return nil, fmt.Errorf("load corrections: %w", err)
	}
	if len(extra) > 0 {
		log.Info("loaded extra spelling corrections", slog.Int("count", len(extra)))
	}
	return normalize.New(extra)
}

func provideDedupStore(lc fx.Lifecycle, cfg config.Config) (dedup.Store, error) {
	store, err := dedup.OpenStore(context.Background(), cfg.Dedup)
	if err != nil {
		return nil, fmt.Errorf("dedup store: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return store.Close() }})
	return store, nil
}

func provideDeduplicator(log *slog.Logger, cfg config.Config, store dedup.Store) (*dedup.Deduplicator, error) {
	policy, err := dedup.ParseFailurePolicy(cfg.Dedup.FailurePolicy)
	if err != nil {
		return nil, err
	}
	return dedup.New(log, store, dedup.Options{
		Window: cfg.Dedup.Window,
		Policy: policy,
	}), nil
}

func provideChatProvider(cfg config.Config) (chat.Provider, error) {
	return chat.NewProvider(context.Background(), cfg.Model)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	return buildRegistry(log, cfg)
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, provider chat.Provider, registry *channel.Registry) *reply.Orchestrator {
	opts := reply.Options{
		Timeout:       cfg.Messaging.ModelTimeout,
		MaxConcurrent: int64(cfg.Model.MaxConcurrent),
		Platform:      registry.Active().String(),
	}
	if desc, ok := registry.GetDescriptor(registry.Active()); ok {
		opts.MaxTextLength = desc.Capabilities.MaxTextLength
	}
	if cfg.History.Enabled {
		opts.History = reply.NewHistory(cfg.History.MaxTurns, cfg.History.TTL)
		opts.ContextTurns = cfg.History.ContextTurns
	}
	return reply.NewOrchestrator(log, provider, opts)
}

func provideProcessor(log *slog.Logger, cfg config.Config, registry *channel.Registry, normalizer *normalize.Normalizer, gate *dedup.Deduplicator, replies *reply.Orchestrator) *inbound.Processor {
	return inbound.NewProcessor(log, registry, normalizer, gate, replies, inbound.Options{
		ModelFailureReply: cfg.Messaging.ModelFailureReply,
	})
}

func providePingHandler(log *slog.Logger, cfg config.Config, registry *channel.Registry, gate *dedup.Deduplicator) *handlers.PingHandler {
	return handlers.NewPingHandler(log,
		channelchecker.NewChecker(log, registry),
		storechecker.NewChecker(log, gate, cfg.Dedup.Store),
	)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startTracing(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) error {
	shutdown, err := tracing.Setup(context.Background(), log, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return shutdown(ctx) }})
	return nil
}

func startDedupSweeper(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, d *dedup.Deduplicator) error {
	if cfg.Dedup.SweepSchedule == "" {
		return nil
	}
	sweeper, err := dedup.NewSweeper(log, d, cfg.Dedup.SweepSchedule)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	fmt.Printf("Starting chip %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("webhook server starting",
				slog.String("addr", cfg.Server.Addr),
				slog.String("provider", cfg.Messaging.Provider),
				slog.String("dedup_store", cfg.Dedup.Store),
				slog.String("model_provider", cfg.Model.Provider))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
