package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	adminApp "github.com/parakeetlabs/perch/internal/application/admin"
	companyApp "github.com/parakeetlabs/perch/internal/application/company"
	conversationApp "github.com/parakeetlabs/perch/internal/application/conversation"
	documentApp "github.com/parakeetlabs/perch/internal/application/document"
	healthApp "github.com/parakeetlabs/perch/internal/application/health"
	scheduleApp "github.com/parakeetlabs/perch/internal/application/schedule"
	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/config"
	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/metrics"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
	"github.com/parakeetlabs/perch/pkg/common/logger"
	commonotel "github.com/parakeetlabs/perch/pkg/common/otel"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

// app is the composed console: configuration, telemetry, the platform
// client, and the application services, wired once per invocation.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	clock   timeutil.Provider
	cleanup func(context.Context)

	session *session.Session
	client  *apiclient.Client
	cache   *statuscache.Cache

	companies     *companyApp.Service
	documents     *documentApp.Service
	conversations *conversationApp.Service
	schedules     *scheduleApp.Service
	health        *healthApp.Service
	admin         *adminApp.Service

	jsonOut bool
}

func buildApp(jsonOut bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(
		os.Stderr,
		logger.ParseLevel(cfg.Observability.LogLevel),
		cfg.Observability.ServiceName,
		commonotel.GetTraceID,
		cfg.Observability.OTELEnabled,
	)

	var tracer trace.Tracer
	cleanup := func(context.Context) {}
	if cfg.Observability.OTELEnabled {
		tp, otelCleanup, err := commonotel.InitTelemetry(log, commonotel.Config{
			ServiceName:      cfg.Observability.ServiceName,
			ExporterEndpoint: cfg.Observability.OTELEndpoint,
			SampleRate:       cfg.Observability.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		tracer = tp.Tracer("perchctl")
		cleanup = otelCleanup
	} else {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	registry, err := metrics.NewRegistry(commonotel.GetMeterProvider())
	if err != nil {
		cleanup(context.Background())
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	sess := session.New(log, registry.Session)
	client := apiclient.New(apiclient.Config{
		BaseURL:          cfg.API.BaseURL,
		APIRoot:          cfg.API.APIRoot,
		DefaultTimeout:   cfg.API.RequestTimeout,
		ProbeTimeout:     cfg.API.ProbeTimeout,
		MaxAttempts:      cfg.Resilience.MaxRetries,
		RetryBaseDelay:   cfg.Resilience.RetryBaseDelay,
		FragilePrefixes:  cfg.Resilience.FragilePrefixes,
		ScheduleProbeURL: cfg.API.ScheduleProbePath(),
		Debug:            cfg.Observability.Debug,
	}, sess, log, tracer, apiclient.WithMetrics(registry.Client))

	clock := timeutil.Default()
	cache := statuscache.New(cfg.Cache.TTL, clock, log, registry.Cache)

	companies := companyApp.NewService(client, cache, sess, log, tracer)
	documents := documentApp.NewService(client, cache, sess, cfg.API.UploadTimeout, log, tracer)
	conversations := conversationApp.NewService(client, sess, cfg.API.UploadTimeout, log, tracer)
	schedules := scheduleApp.NewService(client, sess, cfg.API.ScheduleURL, log, tracer)
	healthSvc := healthApp.NewService(client, healthApp.DefaultTargets(cfg.API.ScheduleProbePath()), clock, log, tracer, registry.Health)
	adminSvc := adminApp.NewService(client, cache, healthSvc, clock, log, tracer)

	// Switch subscribers, in the order the dashboard refreshed its
	// panels: knowledge base first, then the status card.
	sess.Subscribe("documents", func(ctx context.Context, id company.ID) error {
		if _, err := documents.List(ctx); err != nil {
			return fmt.Errorf("document list refresh: %w", err)
		}
		return nil
	})
	sess.Subscribe("status", func(ctx context.Context, id company.ID) error {
		if _, _, err := companies.Status(ctx, id); err != nil {
			return fmt.Errorf("status prefetch: %w", err)
		}
		return nil
	})

	return &app{
		cfg:           cfg,
		log:           log,
		clock:         clock,
		cleanup:       cleanup,
		session:       sess,
		client:        client,
		cache:         cache,
		companies:     companies,
		documents:     documents,
		conversations: conversations,
		schedules:     schedules,
		health:        healthSvc,
		admin:         adminSvc,
		jsonOut:       jsonOut,
	}, nil
}

// Close flushes telemetry. It gets its own context so a canceled
// command context cannot cut the flush short.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	a.cleanup(ctx)
}

// bootstrap runs the dashboard's startup sequence: probe the scheduling
// service in the background, fetch the company list, and select the
// configured or first company. List failures are fatal only for
// commands that need a tenant.
func (a *app) bootstrap(ctx context.Context, needTenant bool) error {
	go func() {
		if err := a.client.ProbeSchedule(ctx); err != nil {
			a.log.Debug(ctx, "schedule probe failed", "error", err.Error())
		}
	}()

	list, err := a.companies.List(ctx)
	if err != nil {
		if needTenant {
			return fmt.Errorf("fetching company list: %w", err)
		}
		a.log.Warn(ctx, "company list unavailable", "error", err.Error())
		return nil
	}
	if len(list) == 0 {
		if needTenant {
			return errors.New("platform reports no companies")
		}
		return nil
	}

	target := company.ID(a.cfg.Session.DefaultCompany)
	if target == "" {
		target = list[0].ID
	}
	if !slices.ContainsFunc(list, func(c company.Company) bool { return c.ID == target }) {
		if needTenant {
			return fmt.Errorf("%s: %w", target, company.ErrNotFound)
		}
		a.log.Warn(ctx, "configured company unknown", "company_id", target.String())
		return nil
	}

	warnings, err := a.session.SelectAndReport(ctx, target)
	if err != nil {
		if needTenant {
			return fmt.Errorf("selecting company %s: %w", target, err)
		}
		a.log.Warn(ctx, "startup company selection failed", "company_id", target.String(), "error", err.Error())
		return nil
	}
	if warnings != nil {
		a.log.Warn(ctx, "startup refresh warnings", "error", warnings.Error())
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func (a *app) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// table renders aligned columns to stdout.
func (a *app) table(render func(w *tabwriter.Writer)) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	render(w)
	w.Flush()
}

// cacheNote describes where a cached answer came from.
func cacheNote(meta statuscache.Meta) string {
	switch {
	case meta.Stale:
		return fmt.Sprintf("stale copy from %s", meta.FetchedAt.Format(time.RFC3339))
	case meta.Hit:
		return fmt.Sprintf("cached copy from %s", meta.FetchedAt.Format(time.RFC3339))
	default:
		return "fresh fetch"
	}
}

// degradedSuffix is appended to rendered results that were substituted
// because the scheduling service was unreachable.
func degradedSuffix(degraded bool, reason string) string {
	if !degraded {
		return ""
	}
	return fmt.Sprintf(" [degraded: %s]", reason)
}
