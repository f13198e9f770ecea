package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/metrics"
)

func TestConstructorsFollowRegistryState(t *testing.T) {
	if m := NewBootstrapMetrics(); m != nil {
		t.Fatal("expected nil bootstrap metrics while disabled")
	}
	if m := NewTriggerMetrics(); m != nil {
		t.Fatal("expected nil trigger metrics while disabled")
	}
	if m := NewConsumerMetrics(); m != nil {
		t.Fatal("expected nil consumer metrics while disabled")
	}

	metrics.InitRegistry()

	bm := NewBootstrapMetrics()
	if bm == nil {
		t.Fatal("expected bootstrap metrics while enabled")
	}
	bm.ObserveRun("instance", "bootstrapped", 120*time.Millisecond)

	// Constructors are shared: a second caller gets the same collectors
	// instead of a duplicate-registration panic.
	if again := NewBootstrapMetrics(); again != bm {
		t.Error("expected repeated construction to return the shared instance")
	}

	tm := NewTriggerMetrics()
	tm.RecordPublish(changelog.OpCreate)
	tm.RecordPublishFailure(changelog.OpDelete)

	cm := NewConsumerMetrics()
	cm.RecordEvent(changelog.OpCreate)
	cm.RecordProvisioning("provisioned", time.Second)
	cm.SetCommittedOffset(42)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	for _, name := range []string{
		"groundplane_bootstrap_runs_total",
		"groundplane_changelog_published_total",
		"groundplane_changelog_publish_failures_total",
		"groundplane_consumer_events_total",
		"groundplane_consumer_provisioning_total",
		"groundplane_consumer_committed_offset",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in scrape output", name)
		}
	}
}

func TestMethodsSafeOnNilReceiver(t *testing.T) {
	var bm *bootstrapMetrics
	bm.ObserveRun("tenant", "failed", time.Second)

	var tm *triggerMetrics
	tm.RecordPublish(changelog.OpUpdate)
	tm.RecordPublishFailure(changelog.OpUpdate)

	var cm *consumerMetrics
	cm.RecordEvent(changelog.OpDelete)
	cm.RecordProvisioning("failed", time.Second)
	cm.SetCommittedOffset(1)
}
