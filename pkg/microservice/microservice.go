// Package microservice composes the control-plane components into services
// with a uniform three-phase lifecycle. Each phase is a lifecycle composite:
// initialize constructs the service's components in dependency order, start
// brings them online, stop shuts them down in reverse. The step engine runs
// the phases, so a failure names the exact step that broke.
//
// A Runner executes a configured set of services in one process. Services
// run strictly in declared order: a service starts only after every
// service before it is fully up, which is what lets tenant-management
// assume the instance bootstrap has already happened when
// instance-management precedes it.
package microservice

import (
	"context"

	"github.com/groundplane/groundplane/pkg/lifecycle"
)

// Service names, as used in configuration and step names.
const (
	ServiceInstanceManagement = "instance-management"
	ServiceTenantManagement   = "tenant-management"
)

// Microservice is one composable control-plane service.
//
// The phases run in order: Initialize once, Start once, Stop once. Stop
// must also be safe after a failed Initialize or Start; its steps skip
// components that never came up.
type Microservice interface {
	// Name returns the service's stable identifier, used in configuration,
	// step names and logs.
	Name() string

	// Initialize constructs the service's components in dependency order.
	Initialize(ctx context.Context, mon *lifecycle.Monitor) error

	// Start brings the initialized components online.
	Start(ctx context.Context, mon *lifecycle.Monitor) error

	// Stop shuts the components down in reverse start order.
	Stop(ctx context.Context, mon *lifecycle.Monitor) error
}

// Background is implemented by services that keep work running after Start
// returns. A value received from Done reports that work's terminal
// failure; the runner treats it as fatal to the whole process.
type Background interface {
	Done() <-chan error
}
