package main

import (
	"context"
	"fmt"

	"github.com/JailtonJunior94/pipetrace/pkg/config"
	"github.com/JailtonJunior94/pipetrace/pkg/exporter"
	"github.com/JailtonJunior94/pipetrace/pkg/httpclient"
	"github.com/JailtonJunior94/pipetrace/pkg/ingest"
	"github.com/JailtonJunior94/pipetrace/pkg/metadata"
	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/zaplog"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/JailtonJunior94/pipetrace/pkg/traceparent"
	"github.com/JailtonJunior94/pipetrace/pkg/tracing"
	"github.com/JailtonJunior94/pipetrace/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var address, backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest API and export build traces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if address != "" {
				settings.Server.Address = address
			}
			if backend != "" {
				settings.Tracing.Backend = backend
				if err := settings.Validate(); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address, overrides PIPETRACE_SERVER_ADDRESS")
	cmd.Flags().StringVar(&backend, "backend", "", "tracing backend (tenant, log, memory), overrides PIPETRACE_TRACING_BACKEND")
	return cmd
}

func newLogger(s *config.Settings) (*zaplog.Logger, error) {
	level, err := observability.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := observability.ParseFormat(s.Log.Format)
	if err != nil {
		return nil, err
	}

	cfg := zaplog.DefaultConfig(s.Tracing.ServiceName)
	cfg.Level = level
	cfg.Format = format
	return zaplog.New(cfg)
}

func serve(ctx context.Context, s *config.Settings) error {
	logger, err := newLogger(s)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	credentials := config.NewStore(
		config.WithCredentialsFile(s.CredentialsFile),
		config.WithLogger(logger),
	)
	if s.CredentialsFile != "" {
		if err := credentials.Reload(ctx); err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
	}

	tracingOpts := []tracing.Option{tracing.WithLogger(logger)}
	serverOpts := []ingest.Option{}

	if s.Tracing.Backend == config.BackendTenant {
		client := httpclient.New(
			httpclient.WithClientTimeout(s.Exporter.Timeout),
			httpclient.WithMetrics(httpclient.NewMetrics(reg)),
			httpclient.WithLogger(logger),
		)
		exp := exporter.New(credentials,
			exporter.WithLogger(logger),
			exporter.WithTimeout(s.Exporter.Timeout),
			exporter.WithClientFactory(exporter.OTLPClientFactory(client, s.Exporter.Timeout)),
			exporter.WithMetrics(exporter.NewMetrics(reg)),
		)
		credentials.OnChange(func() {
			if err := exp.Reset(context.Background()); err != nil {
				logger.Warn(context.Background(), "failed to shut down retired exporter clients", observability.Error(err))
			}
		})
		tracingOpts = append(tracingOpts, tracing.WithSpanExporter(exp))
		serverOpts = append(serverOpts, ingest.WithHealthCheck("credentials", func(context.Context) error {
			if credentials.Organizations() == 0 {
				return config.ErrNoCredentials
			}
			return nil
		}))
	}

	provider, err := tracing.New(ctx, tracing.ConfigFromSettings(s.Tracing), tracingOpts...)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	provider.SetGlobal()

	meta := metadata.NewStore(
		metadata.WithLogger(logger),
		metadata.WithLegacyAttributes(s.LegacyAttributes),
	)
	tokens := traceparent.NewStore[registry.BuildHandle]()
	t := tracker.New(provider.Tracer(), meta,
		tracker.WithLogger(logger),
		tracker.WithBuildStepExtensions(s.BuildStepExtensions...),
		tracker.WithContextSink(tokens),
		tracker.WithLegacyAttributes(s.LegacyAttributes),
		tracker.WithMetrics(tracker.NewMetrics(reg)),
	)

	ingestMetrics := ingest.NewMetrics(reg)
	api := ingest.NewAPI(t, meta,
		ingest.WithRoots(&t.Registry().Builds),
		ingest.WithEnvironment(tokens),
		ingest.WithReloader(credentials),
		ingest.WithDashboardURL(s.DashboardURL),
		ingest.WithAPIMetrics(ingestMetrics),
		ingest.WithAPILogger(logger),
	)

	serverOpts = append(serverOpts,
		ingest.WithConfig(ingest.ConfigFromSettings(s.Server, s.Tracing.ServiceName, s.Tracing.ServiceVersion)),
		ingest.WithMetrics(ingestMetrics, reg),
		ingest.WithOpenSpans(t.Stats),
		ingest.WithShutdown(provider),
	)
	srv, err := ingest.New(logger, serverOpts...)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return err
	}
	srv.RegisterRouters(api)

	return srv.Start(ctx)
}
