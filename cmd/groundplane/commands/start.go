package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/config"
	"github.com/groundplane/groundplane/pkg/metrics"
	"github.com/groundplane/groundplane/pkg/microservice"
	"github.com/groundplane/groundplane/pkg/template"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the control plane",
	Long: `Start the configured control-plane services.

The services listed under the "services" config section run inside this
process, in declared order: instance-management bootstraps the platform
instance from its template, tenant-management serves the management API and
provisions tenants off the change log.

The process runs in the foreground until it receives SIGINT or SIGTERM,
then stops services in reverse order within the configured shutdown timeout.

Examples:
  # Start with the default config location
  groundplane start

  # Start with a custom config file
  groundplane start --config /etc/groundplane/config.yaml

  # Start with environment variable overrides
  GROUNDPLANE_LOGGING_LEVEL=DEBUG groundplane start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Stop on SIGINT/SIGTERM; the runner drains services before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "groundplane",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "groundplane",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("Groundplane - Multi-tenant control plane")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics (if enabled). Collectors constructed before this
	// call would be nil, so it precedes all component construction.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.API.Port))
	} else {
		logger.Info("Metrics disabled")
	}

	// Open the shared backends. Both services use the same handles: Badger
	// takes an exclusive directory lock, so a second open would fail.
	coord, err := config.OpenCoordinationStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := coord.Close(); err != nil {
			logger.Error("coordination store close error", "error", err)
		}
	}()

	clog, err := config.OpenChangelog(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := clog.Close(); err != nil {
			logger.Error("change log close error", "error", err)
		}
	}()

	source, err := config.OpenTemplateSource(ctx, cfg)
	if err != nil {
		return err
	}

	registry, err := buildLoaderRegistry(ctx, source)
	if err != nil {
		return err
	}

	services := make([]microservice.Microservice, 0, len(cfg.Services.Enabled))
	for _, name := range cfg.Services.Enabled {
		switch name {
		case microservice.ServiceInstanceManagement:
			services = append(services, microservice.NewInstanceManagement(
				coord, source, registry, cfg.Templates.InstanceTemplateID))
		case microservice.ServiceTenantManagement:
			services = append(services, microservice.NewTenantManagement(
				microservice.TenantManagementConfig{
					Database: cfg.Database,
					API:      cfg.API,
					Consumer: cfg.Consumer,
				}, coord, clog, source, registry))
		default:
			return fmt.Errorf("unknown service: %s", name)
		}
		logger.Info("Service enabled", "service", name)
	}

	runner := microservice.NewRunner(cfg.ShutdownTimeout, services...)

	logger.Info("Control plane is running. Press Ctrl+C to stop.")
	if err := runner.Run(ctx); err != nil {
		logger.Error("Control plane error", "error", err)
		return err
	}
	logger.Info("Control plane stopped")
	return nil
}

// buildLoaderRegistry loads the template set once and registers a staging
// loader for every subsystem the templates name. The platform's engines run
// out of process and bootstrap themselves from the copied template tree in
// the coordination store; delivering a script therefore means it is durably
// staged there, which the applier guarantees before any loader runs.
//
// Loading here also fails fast on invalid templates instead of surfacing
// them later inside a service's start step.
func buildLoaderRegistry(ctx context.Context, source template.Source) (*template.Registry, error) {
	manager := template.NewManager(source)
	if err := manager.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	registry := template.NewRegistry()
	for _, tmpl := range manager.Templates() {
		for _, init := range tmpl.Initializers {
			subsystem := init.Subsystem
			registry.Register(subsystem, template.LoaderFunc(
				func(ctx context.Context, name string, content []byte) error {
					logger.InfoCtx(ctx, "Initializer script staged",
						"subsystem", subsystem, "script", name, "bytes", len(content))
					return nil
				}))
		}
	}

	if subsystems := registry.Subsystems(); len(subsystems) > 0 {
		logger.Info("Subsystem loaders registered", "subsystems", subsystems)
	}
	return registry, nil
}
