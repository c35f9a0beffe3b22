// Package webhookmon keeps provider-side webhook registrations pointed at
// this instance. Providers drop registrations silently (instance moves,
// token rotation), so a cron job re-asserts them.
package webhookmon

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// SettingsStore is the tenant-settings surface the reconciler needs.
type SettingsStore interface {
	ListSettings(ctx context.Context, channelType channel.ChannelType) ([]tenant.ChannelSettings, error)
	UpdateWebhookStatus(ctx context.Context, tenantID string, channelType channel.ChannelType, status string, checkedAt time.Time) error
}

// Reconciler periodically re-registers channel webhooks for all tenants.
type Reconciler struct {
	cron     *cron.Cron
	registry *channel.Registry
	settings SettingsStore
	pipeline config.PipelineConfig
	spec     string
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(registry *channel.Registry, settings SettingsStore, pipelineCfg config.PipelineConfig, webhookCfg config.WebhookConfig, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	spec := webhookCfg.ReconcileSpec
	if spec == "" {
		spec = config.DefaultReconcileSpec
	}
	return &Reconciler{
		cron:     cron.New(),
		registry: registry,
		settings: settings,
		pipeline: pipelineCfg,
		spec:     spec,
		logger:   log.With(slog.String("service", "webhookmon")),
	}
}

// Start schedules the reconcile job and runs one pass immediately.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.spec, func() {
		r.ReconcileAll(context.Background())
	}); err != nil {
		return err
	}
	r.cron.Start()
	go r.ReconcileAll(context.Background())
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// ReconcileAll walks every registrar-capable channel and re-asserts each
// tenant's webhook registration.
func (r *Reconciler) ReconcileAll(ctx context.Context) {
	for _, channelType := range r.registry.Types() {
		registrar, ok := r.registry.WebhookRegistrar(channelType)
		if !ok {
			continue
		}
		items, err := r.settings.ListSettings(ctx, channelType)
		if err != nil {
			r.logger.Error("list settings failed",
				slog.String("channel", channelType.String()),
				slog.Any("error", err))
			continue
		}
		for _, settings := range items {
			r.reconcileOne(ctx, registrar, settings)
		}
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, registrar channel.WebhookRegistrar, settings tenant.ChannelSettings) {
	desired := settings.WebhookURL
	if desired == "" {
		desired = r.pipeline.InboundWebhookURL(settings.Channel.String(), settings.TenantID)
	}

	cred := settings.Credential()
	status := "registered"
	info, err := registrar.WebhookStatus(ctx, cred)
	switch {
	case err != nil:
		// Status probe failed; try to register anyway.
		err = registrar.RegisterWebhook(ctx, cred, desired, settings.WebhookSecret)
	case info.URL != desired:
		r.logger.Info("webhook drifted",
			slog.String("tenant_id", settings.TenantID),
			slog.String("channel", settings.Channel.String()),
			slog.String("current", info.URL),
			slog.String("desired", desired))
		err = registrar.RegisterWebhook(ctx, cred, desired, settings.WebhookSecret)
	}
	if err != nil {
		status = "error: " + err.Error()
		r.logger.Warn("webhook reconcile failed",
			slog.String("tenant_id", settings.TenantID),
			slog.String("channel", settings.Channel.String()),
			slog.Any("error", err))
	}
	if updateErr := r.settings.UpdateWebhookStatus(ctx, settings.TenantID, settings.Channel, status, time.Now()); updateErr != nil {
		r.logger.Error("record webhook status failed",
			slog.String("tenant_id", settings.TenantID),
			slog.Any("error", updateErr))
	}
}
