// Package app assembles the scheduler stack shared by the long-running
// server and the cycle-runner Lambda: database repositories, the portfolio
// client, alert dispatch, the state cache and both runners.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"treasury/internal/alerts"
	"treasury/internal/config"
	"treasury/internal/cycles"
	"treasury/internal/db"
	"treasury/internal/external"
	"treasury/internal/scheduler"
	"treasury/internal/security"
	"treasury/internal/spendwindow"
	"treasury/internal/statecache"
	"treasury/internal/telemetry"
	"treasury/internal/types"
)

// Components is the wired scheduler stack.
type Components struct {
	Pool       *pgxpool.Pool
	Cache      *statecache.Cache
	Registry   *scheduler.Registry
	Dispatcher *alerts.Dispatcher
	Recorder   *telemetry.OTelRecorder
	Portfolio  *external.PortfolioClient
}

// Close releases the database pool.
func (c *Components) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// awsLoader loads the shared AWS config at most once, and only when a
// component needs it.
type awsLoader struct {
	cfg    config.AWSConfig
	loaded *aws.Config
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded != nil {
		return *l.loaded, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(l.cfg.Region)}
	if l.cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(l.cfg.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	l.loaded = &awsCfg
	return awsCfg, nil
}

// Build connects to the database and wires every component. The caller owns
// Close.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	comps, err := assemble(ctx, cfg, logger, pool, &awsLoader{cfg: cfg.AWS})
	if err != nil {
		pool.Close()
		return nil, err
	}
	comps.Pool = pool
	restoreHistory(ctx, comps.Registry, db.NewRunHistoryRepository(pool), logger)
	return comps, nil
}

// historySource reads archived runs, newest first.
type historySource interface {
	ListRecent(ctx context.Context, cycle string, limit int) ([]*types.RunRecord, error)
}

// restoreHistory seeds each runner's in-memory history from the archive so
// status and metrics survive a restart. Failures are logged and skipped.
func restoreHistory(ctx context.Context, registry *scheduler.Registry, source historySource, logger *slog.Logger) {
	for _, runner := range registry.All() {
		records, err := source.ListRecent(ctx, runner.Name(), scheduler.HistoryLimit)
		if err != nil {
			logger.WarnContext(ctx, "failed to restore run history", "cycle", runner.Name(), "error", err)
			continue
		}
		runner.Restore(records)
		logger.DebugContext(ctx, "restored run history", "cycle", runner.Name(), "records", len(records))
	}
}

func assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger, dbtx db.DBTX, loader *awsLoader) (*Components, error) {
	otelRec, err := telemetry.NewOTelRecorder(telemetry.Meter())
	if err != nil {
		return nil, err
	}
	recorders := telemetry.MultiRecorder{otelRec}
	if cfg.Observability.EnableCloudWatch {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, telemetry.NewCloudWatchRecorder(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		))
	}

	sender, err := newAlertSender(ctx, cfg.Alerts, loader)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		logger.Warn("no alert sink configured, breaches will only be logged")
	}
	dispatcher := alerts.NewDispatcher(alerts.Config{
		Thresholds: alerts.Thresholds{
			RiskScore:   cfg.Alerts.RiskScoreThreshold,
			Utilization: cfg.Alerts.UtilizationThreshold,
		},
		Cooldown: cfg.Alerts.Cooldown,
		Sender:   sender,
		Logger:   logger,
		Recorder: recorders,
	})

	retry := external.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Portfolio.MaxRetries
	portfolio := external.NewPortfolioClient(
		external.NewBaseClient(
			&http.Client{Timeout: cfg.Portfolio.Timeout},
			external.BreakerSettings{
				Name:                "portfolio",
				ConsecutiveFailures: cfg.Portfolio.BreakerFailures,
				OpenTimeout:         cfg.Portfolio.BreakerOpenDelay,
			},
			retry,
			cfg.Portfolio.UserAgent,
		),
		cfg.Portfolio.BaseURL,
		cfg.Portfolio.APIKey,
	)

	accounts := db.NewAccountRepository(dbtx)
	cache := statecache.New(statecache.NewBus())
	spend := spendwindow.NewService(db.NewDelegationRepository(dbtx), types.RealClock{}, logger)

	monitoring := cycles.NewMonitoring(cycles.MonitoringConfig{
		Accounts:  accounts,
		Portfolio: portfolio,
		Protocols: portfolio,
		Alerts:    dispatcher,
		State:     cache,
		Logger:    logger,
	})
	execution := cycles.NewExecution(cycles.ExecutionConfig{
		Accounts:    accounts,
		Agent:       portfolio,
		SpendWindow: spend,
		Alerts:      dispatcher,
		State:       cache,
		Logger:      logger,
		AutoExecute: cfg.Scheduler.AutoExecute,
	})

	publisher := &cycles.RunPublisher{State: cache, Next: recorders}
	locks := db.NewJobLockRepository(dbtx)
	archive := db.NewRunHistoryRepository(dbtx)
	newRunner := func(name string, interval time.Duration, cycle scheduler.Cycle) *scheduler.Runner {
		return scheduler.NewRunner(scheduler.Config{
			Name:     name,
			Interval: interval,
			Cycle:    cycle,
			Logger:   logger,
			Metrics:  publisher,
			Archive:  archive,
			Lock:     locks,
			WorkerID: cfg.Scheduler.WorkerID,
			LockTTL:  cfg.Scheduler.LockTTL,
		})
	}

	return &Components{
		Cache: cache,
		Registry: scheduler.NewRegistry(
			newRunner(cycles.NameMonitoring, cfg.Scheduler.MonitoringInterval, monitoring),
			newRunner(cycles.NameExecution, cfg.Scheduler.ExecutionInterval, execution),
		),
		Dispatcher: dispatcher,
		Recorder:   otelRec,
		Portfolio:  portfolio,
	}, nil
}

// newAlertSender builds the configured sinks. It returns nil when neither a
// webhook nor a queue is configured.
func newAlertSender(ctx context.Context, cfg config.AlertsConfig, loader *awsLoader) (types.AlertSender, error) {
	var senders alerts.MultiSender

	if cfg.WebhookURL != "" {
		guard := &security.Guard{AllowPrivate: cfg.AllowPrivate}
		senders = append(senders, alerts.NewWebhookSender(
			types.SecretString(cfg.WebhookURL),
			cfg.WebhookSecret,
			cfg.UserAgent,
			guard.NewHTTPClient(cfg.Timeout, cfg.MaxRedirects),
		))
	}

	if cfg.QueueURL != "" {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		senders = append(senders, alerts.NewQueueSender(sqs.NewFromConfig(awsCfg), cfg.QueueURL))
	}

	switch len(senders) {
	case 0:
		return nil, nil
	case 1:
		return senders[0], nil
	default:
		return senders, nil
	}
}
