package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/relaydesk/relaydesk/internal/automation"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/discord"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/telegram"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/pipeline"
	"github.com/relaydesk/relaydesk/internal/server"
	"github.com/relaydesk/relaydesk/internal/tenant"
	"github.com/relaydesk/relaydesk/internal/webhookmon"
)

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			provideLogger,
			provideDBPool,
			tenant.NewService,
			contact.NewService,
			conversation.NewService,
			message.NewService,
			automation.NewService,
			provideDispatcher,
			provideChannelRegistry,
			provideProcessor,
			provideReconciler,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideCallbackHandler),
			provideServerHandler(provideTenantHandler),
			provideServerHandler(handlers.NewAutomationHandler),
			provideServerHandler(handlers.NewConversationHandler),
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startReconciler,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.Init(cfg.Log.Level, cfg.Log.Format)
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideDispatcher(cfg config.Config, log *slog.Logger) *automation.Dispatcher {
	return automation.NewDispatcher(cfg.Pipeline.DispatchTimeout(), log)
}

func provideChannelRegistry(log *slog.Logger) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(telegram.NewAdapter(log))
	registry.MustRegister(discord.NewAdapter(log))
	return registry
}

func provideProcessor(
	registry *channel.Registry,
	tenants *tenant.Service,
	contacts *contact.Service,
	conversations *conversation.Service,
	messages *message.Service,
	automations *automation.Service,
	dispatcher *automation.Dispatcher,
	cfg config.Config,
	log *slog.Logger,
) *pipeline.Processor {
	return pipeline.NewProcessor(registry, tenants, contacts, conversations,
		messages, automations, dispatcher, cfg.Pipeline, log)
}

func provideReconciler(
	registry *channel.Registry,
	tenants *tenant.Service,
	cfg config.Config,
	log *slog.Logger,
) *webhookmon.Reconciler {
	return webhookmon.NewReconciler(registry, tenants, cfg.Pipeline, cfg.Webhooks, log)
}

func provideWebhookHandler(log *slog.Logger, processor *pipeline.Processor) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, processor)
}

func provideCallbackHandler(log *slog.Logger, processor *pipeline.Processor) *handlers.CallbackHandler {
	return handlers.NewCallbackHandler(log, processor)
}

func provideTenantHandler(log *slog.Logger, tenants *tenant.Service, registry *channel.Registry, cfg config.Config) *handlers.TenantHandler {
	return handlers.NewTenantHandler(log, tenants, registry, cfg.Pipeline)
}

type serverParams struct {
	fx.In

	Config         config.Config
	Logger         *slog.Logger
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Config.Server.Addr, params.Logger, params.ServerHandlers...)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return err
	}
	log.Info("database schema up to date")
	return nil
}

func startReconciler(lc fx.Lifecycle, cfg config.Config, reconciler *webhookmon.Reconciler) {
	if !cfg.Webhooks.ReconcileEnabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return reconciler.Start()
		},
		OnStop: func(ctx context.Context) error {
			reconciler.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("server starting", slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}
