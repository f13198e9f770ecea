package microservice_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/microservice"
)

// recorder collects phase invocations across all fakes so tests can assert
// global ordering.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeService records its phase calls and fails on demand.
type fakeService struct {
	name     string
	rec      *recorder
	initErr  error
	startErr error
	stopErr  error
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Initialize(ctx context.Context, mon *lifecycle.Monitor) error {
	f.rec.add(f.name + ".initialize")
	return f.initErr
}

func (f *fakeService) Start(ctx context.Context, mon *lifecycle.Monitor) error {
	f.rec.add(f.name + ".start")
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context, mon *lifecycle.Monitor) error {
	f.rec.add(f.name + ".stop")
	return f.stopErr
}

// backgroundFake adds a background failure channel to a fake.
type backgroundFake struct {
	*fakeService
	done chan error
}

func (f *backgroundFake) Done() <-chan error { return f.done }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertCalls(t *testing.T, rec *recorder, want []string) {
	t.Helper()
	got := rec.list()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: expected %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestRunnerRunsServicesInDeclaredOrder(t *testing.T) {
	rec := &recorder{}
	alpha := &fakeService{name: "alpha", rec: rec}
	beta := &fakeService{name: "beta", rec: rec}
	r := microservice.NewRunner(time.Second, alpha, beta)

	if r.Ready() {
		t.Fatal("a runner that has not run must not be ready")
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	waitFor(t, "runner ready", r.Ready)
	cancel()

	if err := <-runDone; err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if r.Ready() {
		t.Error("expected not ready after shutdown")
	}

	assertCalls(t, rec, []string{
		"alpha.initialize", "alpha.start",
		"beta.initialize", "beta.start",
		"beta.stop", "alpha.stop",
	})
}

func TestRunnerInitializeFailureStopsStartedServices(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("backend unreachable")
	alpha := &fakeService{name: "alpha", rec: rec}
	beta := &fakeService{name: "beta", rec: rec, initErr: boom}
	r := microservice.NewRunner(time.Second, alpha, beta)

	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected the initialize failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "beta initialize failed") {
		t.Errorf("error should name the failing service and phase: %v", err)
	}
	if r.Ready() {
		t.Error("runner must never report ready after a failed startup")
	}

	// The partially initialized service is stopped too, before the ones
	// already up.
	assertCalls(t, rec, []string{
		"alpha.initialize", "alpha.start",
		"beta.initialize",
		"beta.stop", "alpha.stop",
	})
}

func TestRunnerStartFailureStopsStartedServices(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("port in use")
	alpha := &fakeService{name: "alpha", rec: rec}
	beta := &fakeService{name: "beta", rec: rec, startErr: boom}
	r := microservice.NewRunner(time.Second, alpha, beta)

	err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected the start failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "beta start failed") {
		t.Errorf("error should name the failing service and phase: %v", err)
	}

	assertCalls(t, rec, []string{
		"alpha.initialize", "alpha.start",
		"beta.initialize", "beta.start",
		"beta.stop", "alpha.stop",
	})
}

func TestRunnerBackgroundFailureShutsDown(t *testing.T) {
	rec := &recorder{}
	alpha := &fakeService{name: "alpha", rec: rec}
	beta := &backgroundFake{
		fakeService: &fakeService{name: "beta", rec: rec},
		done:        make(chan error, 1),
	}
	r := microservice.NewRunner(time.Second, alpha, beta)

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(context.Background()) }()
	waitFor(t, "runner ready", r.Ready)

	boom := errors.New("listener died")
	beta.done <- boom

	err := <-runDone
	if !errors.Is(err, boom) {
		t.Fatalf("expected the background failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "service beta") {
		t.Errorf("error should name the failing service: %v", err)
	}
	if r.Ready() {
		t.Error("expected not ready after a background failure")
	}

	assertCalls(t, rec, []string{
		"alpha.initialize", "alpha.start",
		"beta.initialize", "beta.start",
		"beta.stop", "alpha.stop",
	})
}

func TestRunnerStopErrorsDoNotAbortShutdown(t *testing.T) {
	rec := &recorder{}
	alpha := &fakeService{name: "alpha", rec: rec}
	beta := &fakeService{name: "beta", rec: rec, stopErr: errors.New("flush failed")}
	r := microservice.NewRunner(time.Second, alpha, beta)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()
	waitFor(t, "runner ready", r.Ready)
	cancel()

	// beta's stop failure is logged, not propagated: alpha still stops and
	// the run ends cleanly.
	if err := <-runDone; err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	assertCalls(t, rec, []string{
		"alpha.initialize", "alpha.start",
		"beta.initialize", "beta.start",
		"beta.stop", "alpha.stop",
	})
}

func TestRunnerRunsOnlyOnce(t *testing.T) {
	rec := &recorder{}
	svc := &fakeService{name: "alpha", rec: rec}
	r := microservice.NewRunner(time.Second, svc)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()
	waitFor(t, "runner ready", r.Ready)
	cancel()
	if err := <-runDone; err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	before := len(rec.list())
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if after := len(rec.list()); after != before {
		t.Errorf("second Run() must not touch the services: %d new calls", after-before)
	}
}
