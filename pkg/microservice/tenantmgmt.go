package microservice

import (
	"context"
	"fmt"

	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/metrics/prometheus"
	"github.com/groundplane/groundplane/pkg/provision"
	"github.com/groundplane/groundplane/pkg/template"
	"github.com/groundplane/groundplane/pkg/tenant/api"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// TenantManagementConfig configures the tenant-management service's owned
// components. Shared infrastructure (coordination store, change log,
// template source) is injected separately.
type TenantManagementConfig struct {
	// Database configures the tenant store backend.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// API configures the management REST API server.
	API api.Config `mapstructure:"api" yaml:"api"`

	// Consumer tunes the bootstrap consumer.
	Consumer provision.ConsumerConfig `mapstructure:"consumer" yaml:"consumer"`
}

// TenantManagement runs the tenant fleet: the relational tenant store, the
// management API that mutates it, the change producer that publishes those
// mutations, and the consumer that drives per-tenant provisioning off the
// change log.
//
// Component order is fixed. Initialize builds store → template manager →
// producer → consumer → API server; start brings them up in that order
// with the consumer last, so the log only starts draining once everything
// it provisions against is online; stop reverses the start order.
type TenantManagement struct {
	config   TenantManagementConfig
	coord    coordination.Store
	log      changelog.Log
	source   template.Source
	registry *template.Registry

	// Populated by the initialize composite.
	tenants   store.Store
	templates *template.Manager
	producer  *provision.Trigger
	consumer  *provision.Consumer
	api       *api.Server

	// API serve goroutine bookkeeping.
	serveCancel context.CancelFunc
	serveDone   chan struct{}
	failed      chan error
}

var (
	_ Microservice = (*TenantManagement)(nil)
	_ Background   = (*TenantManagement)(nil)
)

// NewTenantManagement creates the tenant-management service. The registry
// must hold a loader for every subsystem named by the tenant templates'
// initializers.
func NewTenantManagement(cfg TenantManagementConfig, coord coordination.Store, log changelog.Log, source template.Source, registry *template.Registry) *TenantManagement {
	return &TenantManagement{
		config:   cfg,
		coord:    coord,
		log:      log,
		source:   source,
		registry: registry,
		failed:   make(chan error, 1),
	}
}

// Name returns ServiceTenantManagement.
func (s *TenantManagement) Name() string { return ServiceTenantManagement }

// Initialize constructs the service's components in dependency order. Any
// failure leaves the already-built components in place for Stop to release.
func (s *TenantManagement) Initialize(ctx context.Context, mon *lifecycle.Monitor) error {
	return lifecycle.NewComposite(s.Name()+".initialize",
		lifecycle.NewStep("tenant-store", s.openTenantStore),
		lifecycle.NewStep("template-manager", s.initTemplateManager),
		lifecycle.NewStep("change-producer", s.initProducer),
		lifecycle.NewStep("bootstrap-consumer", s.initConsumer),
		lifecycle.NewStep("api-server", s.initAPIServer),
	).Execute(ctx, mon)
}

// Start brings the components online, consumer last. The change producer
// has no start action: it is a stateless decorator publishing on the
// store's write path.
func (s *TenantManagement) Start(ctx context.Context, mon *lifecycle.Monitor) error {
	if s.api == nil {
		return fmt.Errorf("%s: Start before Initialize", s.Name())
	}
	return lifecycle.NewComposite(s.Name()+".start",
		lifecycle.NewStep("tenant-store", s.tenants.Healthcheck),
		lifecycle.NewStep("template-manager", s.templates.Load),
		lifecycle.NewStep("api-server", s.startAPIServer),
		lifecycle.NewStep("bootstrap-consumer", s.consumer.Start),
	).Execute(ctx, mon)
}

// Stop shuts the components down in reverse start order. Every step is
// optional so a failing component cannot block the rest of the shutdown,
// and each skips components that never came up.
func (s *TenantManagement) Stop(ctx context.Context, mon *lifecycle.Monitor) error {
	return lifecycle.NewComposite(s.Name()+".stop",
		lifecycle.NewOptionalStep("bootstrap-consumer", s.stopConsumer),
		lifecycle.NewOptionalStep("api-server", s.stopAPIServer),
		lifecycle.NewOptionalStep("tenant-store", s.closeTenantStore),
	).Execute(ctx, mon)
}

// Done reports the terminal failure of the API serve goroutine. The server
// dying out from under a healthy process is fatal: the runner shuts the
// whole process down on it.
func (s *TenantManagement) Done() <-chan error {
	return s.failed
}

// APIPort returns the management API port, or 0 before Initialize.
func (s *TenantManagement) APIPort() int {
	if s.api == nil {
		return 0
	}
	return s.api.Port()
}

func (s *TenantManagement) openTenantStore(ctx context.Context) error {
	st, err := store.New(&s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open tenant store: %w", err)
	}
	s.tenants = st
	return nil
}

func (s *TenantManagement) initTemplateManager(ctx context.Context) error {
	s.templates = template.NewManager(s.source)
	return nil
}

func (s *TenantManagement) initProducer(ctx context.Context) error {
	s.producer = provision.NewTrigger(s.tenants, s.log, prometheus.NewTriggerMetrics())
	return nil
}

func (s *TenantManagement) initConsumer(ctx context.Context) error {
	bootstrapper := bootstrap.NewTenantBootstrapper(s.coord, s.templates, s.registry, prometheus.NewBootstrapMetrics())
	// The consumer writes status through the undecorated store: it must
	// never publish change events to itself.
	s.consumer = provision.NewConsumer(s.log, s.tenants, bootstrapper, &s.config.Consumer, prometheus.NewConsumerMetrics())
	return nil
}

func (s *TenantManagement) initAPIServer(ctx context.Context) error {
	// Mutations go through the trigger-wrapped store so every committed
	// write publishes its change event.
	srv, err := api.NewServer(s.config.API, s.producer, instanceMarker{s.coord})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	s.api = srv
	return nil
}

// startAPIServer launches the blocking server loop in a goroutine. The
// loop runs under a context the stop step cancels; a failure before that
// lands on the failed channel for the runner to observe.
func (s *TenantManagement) startAPIServer(ctx context.Context) error {
	serveCtx, cancel := context.WithCancel(context.Background())
	s.serveCancel = cancel
	s.serveDone = make(chan struct{})

	go func() {
		defer close(s.serveDone)
		if err := s.api.Start(serveCtx); err != nil {
			select {
			case s.failed <- fmt.Errorf("api server: %w", err):
			default:
			}
		}
	}()
	return nil
}

func (s *TenantManagement) stopConsumer(ctx context.Context) error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Stop(ctx)
}

func (s *TenantManagement) stopAPIServer(ctx context.Context) error {
	if s.api == nil {
		return nil
	}
	err := s.api.Stop(ctx)

	if s.serveCancel != nil {
		s.serveCancel()
		select {
		case <-s.serveDone:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	return err
}

func (s *TenantManagement) closeTenantStore(ctx context.Context) error {
	if s.tenants == nil {
		return nil
	}
	return s.tenants.Close()
}

// instanceMarker backs the API readiness probe with the instance bootstrap
// marker. Checking the marker directly keeps tenant-management independent
// of whether instance-management runs in the same process.
type instanceMarker struct {
	store coordination.Store
}

func (m instanceMarker) Bootstrapped(ctx context.Context) (bool, error) {
	return m.store.Exists(ctx, coordination.InstanceBootstrappedPath)
}
