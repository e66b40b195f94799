package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/audittrail/internal/adapters/events"
	"github.com/atvirokodosprendimai/audittrail/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/core/tracking"
	"github.com/atvirokodosprendimai/audittrail/internal/core/usecase"
	"github.com/atvirokodosprendimai/audittrail/internal/metrics"
	"github.com/atvirokodosprendimai/audittrail/migrations"
)

type Config struct {
	Addr               string
	DBPath             string
	TrackingConfigPath string
	APIToken           string
	WebhookURL         string
	WebhookSecret      string
	WebhookTimeout     time.Duration
	DispatchInterval   time.Duration
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Runtime holds the shared audit infrastructure of one database file.
type Runtime struct {
	DB       *gormsqlite.DB
	Tracking *tracking.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Audit    *usecase.AuditService
	Outbox   *sqliteadapter.OutboxRepository

	log *logrus.Logger
}

// Open opens and migrates the database and loads the tracking config file
// when one is configured.
func Open(ctx context.Context, cfg Config, log *logrus.Logger) (*Runtime, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := gormsqlite.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}

	trackingCfg := tracking.NewConfig()
	if cfg.TrackingConfigPath != "" {
		if err := tracking.LoadFile(trackingCfg, cfg.TrackingConfigPath); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.WithField("path", cfg.TrackingConfigPath).Info("tracking config loaded")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Runtime{
		DB:       db,
		Tracking: trackingCfg,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Audit:    usecase.NewAuditService(sqliteadapter.NewAuditLogRepository(db)),
		Outbox:   sqliteadapter.NewOutboxRepository(db),
		log:      log,
	}, nil
}

// NewTracker returns a fresh unit of work sharing the runtime's tracking
// config, logger and metrics.
func (rt *Runtime) NewTracker(opts ...usecase.CoordinatorOption) *sqliteadapter.TrackerContext {
	opts = append([]usecase.CoordinatorOption{usecase.WithMetrics(rt.Metrics)}, opts...)
	return sqliteadapter.NewTrackerContext(rt.DB, rt.Tracking, rt.log, opts...)
}

// Publisher returns the webhook publisher when a URL is configured and the
// log publisher otherwise.
func (rt *Runtime) Publisher(cfg Config) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	}
	return events.NewLogPublisher(rt.log)
}

func (rt *Runtime) Close() error {
	return rt.DB.Close()
}

func NewServer(ctx context.Context, cfg Config, log *logrus.Logger) (*http.Server, io.Closer, error) {
	rt, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	log = rt.log

	dispatcher := usecase.NewOutboxDispatcher(rt.Outbox, rt.Publisher(cfg), cfg.DispatchInterval, 100,
		usecase.WithDispatcherLogger(log),
		usecase.WithDispatcherMetrics(rt.Metrics),
	)
	dispatcher.Start(context.Background())

	handler := httpapi.NewHandler(rt.Audit, log,
		httpapi.WithAPIToken(cfg.APIToken),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, rt}}, nil
}
