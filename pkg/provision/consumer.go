package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/tenant"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// ErrAlreadyStarted is returned by Start on a running consumer.
var ErrAlreadyStarted = errors.New("consumer already started")

// ConsumerConfig holds the consumer's tuning knobs.
type ConsumerConfig struct {
	// Group is the consumer group name under which offsets are committed.
	Group string `mapstructure:"group" yaml:"group"`

	// PollInterval is how long the dispatcher sleeps when the log is
	// caught up or a fetch failed.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// FetchBatch is the maximum number of events fetched per batch.
	FetchBatch int `mapstructure:"fetch_batch" yaml:"fetch_batch"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *ConsumerConfig) ApplyDefaults() {
	if c.Group == "" {
		c.Group = "provisioner"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = 64
	}
}

// Consumer drains the change log and drives per-tenant provisioning.
//
// A dispatcher loop fetches event batches and routes each event to a
// per-tenant queue drained by a goroutine spawned on demand: events for one
// tenant are processed strictly in log order, events for different tenants
// in parallel. The batch's last offset is committed only after every event
// in the batch has been handled, so a crash redelivers the whole batch;
// handlers are idempotent against that.
//
// Per tenant the consumer runs the machine Observed → Bootstrapping →
// {Done | Failed}: a create event for a tenant without a bootstrap marker
// sets the persisted status to bootstrapping, runs the tenant bootstrap to
// completion and lands on active or failed. Failed is terminal for the
// event: the operator retries by redelivering the create (resetting the
// group offset) after fixing the cause; the consumer never retries on its
// own. A redelivered create for an already-bootstrapped tenant only repairs
// the status to active. Update and delete events are acknowledged without
// provisioning action.
//
// Status writes go through the undecorated store, never the Trigger: the
// consumer must not publish events to itself.
type Consumer struct {
	log          changelog.Log
	tenants      store.Store
	bootstrapper *bootstrap.TenantBootstrapper
	config       *ConsumerConfig
	metrics      ConsumerMetrics
	logger       *slog.Logger

	mu      sync.Mutex
	queues  map[string]chan job
	workers sync.WaitGroup
	stop    context.CancelFunc
	done    chan struct{}
}

// job is one event routed to a tenant worker, with the batch bookkeeping
// needed to decide the commit.
type job struct {
	event changelog.Event
	wg    *sync.WaitGroup
	errs  *batchErrors
}

// batchErrors collects handler errors across the workers of one batch.
type batchErrors struct {
	mu    sync.Mutex
	first error
}

func (b *batchErrors) add(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.first == nil {
		b.first = err
	}
}

func (b *batchErrors) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.first
}

// NewConsumer creates a consumer over the given log, undecorated tenant
// store and tenant bootstrapper. cfg and metrics may be nil.
func NewConsumer(log changelog.Log, tenants store.Store, bootstrapper *bootstrap.TenantBootstrapper, cfg *ConsumerConfig, metrics ConsumerMetrics) *Consumer {
	if cfg == nil {
		cfg = &ConsumerConfig{}
	}
	cfg.ApplyDefaults()

	return &Consumer{
		log:          log,
		tenants:      tenants,
		bootstrapper: bootstrapper,
		config:       cfg,
		metrics:      metrics,
		logger:       logger.With("component", "bootstrap_consumer"),
		queues:       make(map[string]chan job),
	}
}

// Start launches the dispatcher loop. It returns once the loop is running;
// Stop shuts it down.
func (c *Consumer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)

	c.logger.Info("Consumer started",
		"group", c.config.Group,
		"poll_interval", c.config.PollInterval,
		"fetch_batch", c.config.FetchBatch,
	)
	return nil
}

// Stop cancels the dispatcher and waits for it and all tenant workers to
// exit, or for ctx to expire.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	idle := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.logger.Info("Consumer stopped", "group", c.config.Group)
	return nil
}

// run is the dispatcher loop: fetch, route, commit, sleep when caught up.
func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		n, err := c.processBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error("Batch processing failed; events will be redelivered", "error", err)
		}
		if n == 0 || err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.PollInterval):
			}
		}
	}
}

// processBatch fetches one batch, waits until every event in it has been
// handled, and commits the batch's last offset. Any handler error skips the
// commit so the log redelivers the batch.
func (c *Consumer) processBatch(ctx context.Context) (int, error) {
	events, err := c.log.Fetch(ctx, c.config.Group, c.config.FetchBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch change events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	errs := &batchErrors{}
	for _, event := range events {
		wg.Add(1)
		c.route(ctx, job{event: event, wg: &wg, errs: errs})
	}
	wg.Wait()

	if err := errs.err(); err != nil {
		return len(events), fmt.Errorf("batch not committed: %w", err)
	}

	last := events[len(events)-1].Offset
	if err := c.log.Commit(ctx, c.config.Group, last); err != nil {
		return len(events), fmt.Errorf("failed to commit offset %d: %w", last, err)
	}
	if c.metrics != nil {
		c.metrics.SetCommittedOffset(last)
	}
	return len(events), nil
}

// route hands the job to the event's tenant worker, spawning the worker on
// first sight of the tenant.
func (c *Consumer) route(ctx context.Context, j job) {
	c.mu.Lock()
	q, ok := c.queues[j.event.TenantID]
	if !ok {
		q = make(chan job, c.config.FetchBatch)
		c.queues[j.event.TenantID] = q
		c.workers.Add(1)
		go c.worker(ctx, j.event.TenantID, q)
	}
	c.mu.Unlock()

	select {
	case q <- j:
	case <-ctx.Done():
		j.errs.add(ctx.Err())
		j.wg.Done()
	}
}

// worker drains one tenant's queue sequentially until the consumer stops.
func (c *Consumer) worker(ctx context.Context, tenantID string, q chan job) {
	defer c.workers.Done()

	for {
		select {
		case <-ctx.Done():
			// Fail what is still queued so the dispatcher stops waiting.
			for {
				select {
				case j := <-q:
					j.errs.add(ctx.Err())
					j.wg.Done()
				default:
					return
				}
			}
		case j := <-q:
			if err := c.handleEvent(ctx, j.event); err != nil {
				c.logger.Error("Event handling failed",
					"tenant_id", tenantID,
					"op", j.event.Op,
					"offset", j.event.Offset,
					"error", err,
				)
				j.errs.add(err)
			}
			j.wg.Done()
		}
	}
}

// handleEvent dispatches one event. A nil return acknowledges the event; an
// error keeps the batch uncommitted for redelivery.
func (c *Consumer) handleEvent(ctx context.Context, event changelog.Event) error {
	if c.metrics != nil {
		c.metrics.RecordEvent(event.Op)
	}

	switch event.Op {
	case changelog.OpCreate:
		return c.provision(ctx, event)
	case changelog.OpUpdate, changelog.OpDelete:
		c.logger.Debug("Acknowledged change event",
			"tenant_id", event.TenantID,
			"op", event.Op,
			"offset", event.Offset,
		)
		return nil
	default:
		c.logger.Warn("Skipping change event with unknown operation",
			"tenant_id", event.TenantID,
			"op", event.Op,
			"offset", event.Offset,
		)
		return nil
	}
}

// provision runs the per-tenant state machine for one create event.
//
// The tenant record is resolved from the store at processing time, not from
// the event payload: a redelivered event must not resurrect a stale
// template id, and a tenant deleted since the event was published must not
// be provisioned.
func (c *Consumer) provision(ctx context.Context, event changelog.Event) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanConsumerProvision,
		trace.WithAttributes(
			telemetry.TenantID(event.TenantID),
			telemetry.LogOffset(event.Offset),
		))
	defer span.End()

	start := time.Now()

	rec, err := c.tenants.GetTenant(ctx, event.TenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			c.logger.Info("Skipping create event for deleted tenant",
				"tenant_id", event.TenantID,
				"offset", event.Offset,
			)
			return nil
		}
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to load tenant %s: %w", event.TenantID, err)
	}

	bootstrapped, err := c.bootstrapper.Bootstrapped(ctx, rec.ID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to check bootstrap marker for tenant %s: %w", rec.ID, err)
	}
	if bootstrapped {
		// Redelivery after completion: repair the status, touch nothing
		// else.
		if rec.Status != tenant.StatusActive {
			if err := c.setStatus(ctx, rec.ID, tenant.StatusActive); err != nil {
				return err
			}
		}
		c.recordProvisioning(OutcomeAlreadyProvisioned, start)
		c.logger.Debug("Tenant already provisioned", "tenant_id", rec.ID)
		return nil
	}

	if err := c.setStatus(ctx, rec.ID, tenant.StatusBootstrapping); err != nil {
		return err
	}

	if err := c.bootstrapper.Bootstrap(ctx, rec); err != nil {
		c.logger.Error("Tenant provisioning failed; awaiting operator retry",
			"tenant_id", rec.ID,
			"template_id", rec.TemplateID,
			"error", err,
		)
		telemetry.RecordError(ctx, err)
		if serr := c.setStatus(ctx, rec.ID, tenant.StatusFailed); serr != nil {
			return serr
		}
		c.recordProvisioning(OutcomeFailed, start)
		return nil
	}

	if err := c.setStatus(ctx, rec.ID, tenant.StatusActive); err != nil {
		// The marker exists; redelivery repairs the status.
		return err
	}

	c.recordProvisioning(OutcomeProvisioned, start)
	c.logger.Info("Tenant provisioned",
		"tenant_id", rec.ID,
		"template_id", rec.TemplateID,
	)
	return nil
}

// setStatus writes the tenant status through the undecorated store. A
// tenant deleted mid-flight is not an error.
func (c *Consumer) setStatus(ctx context.Context, id string, status tenant.Status) error {
	err := c.tenants.UpdateTenantStatus(ctx, id, status)
	if err != nil && !errors.Is(err, tenant.ErrTenantNotFound) {
		return fmt.Errorf("failed to set tenant %s status to %s: %w", id, status, err)
	}
	return nil
}

func (c *Consumer) recordProvisioning(outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordProvisioning(outcome, time.Since(start))
	}
}
