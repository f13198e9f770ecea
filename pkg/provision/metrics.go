package provision

import (
	"time"

	"github.com/groundplane/groundplane/pkg/changelog"
)

// Provisioning outcome label values reported to ConsumerMetrics.
const (
	OutcomeProvisioned        = "provisioned"
	OutcomeAlreadyProvisioned = "already_provisioned"
	OutcomeFailed             = "failed"
)

// TriggerMetrics observes change-event publication. Optional: pass nil to
// disable collection at zero overhead.
type TriggerMetrics interface {
	// RecordPublish records one successfully published change event.
	RecordPublish(op changelog.Op)

	// RecordPublishFailure records a lost event: persistence succeeded but
	// the append to the change log did not.
	RecordPublishFailure(op changelog.Op)
}

// ConsumerMetrics observes event consumption and per-tenant provisioning.
// Optional: pass nil to disable collection at zero overhead.
type ConsumerMetrics interface {
	// RecordEvent records one consumed change event.
	RecordEvent(op changelog.Op)

	// RecordProvisioning records one provisioning run with its outcome and
	// duration.
	RecordProvisioning(outcome string, duration time.Duration)

	// SetCommittedOffset records the group's committed log position.
	SetCommittedOffset(offset uint64)
}
