// Package orchestrator abstracts the cluster scheduler that runs dedicated
// game servers. The core only ever sees the narrow Adapter interface; the
// real create/delete mechanics live in the kubernetes and docker
// implementations and in the cluster-side controller.
package orchestrator

import (
	"context"
	"strings"
)

// WorkloadSpec carries everything the scheduler needs to start one instance.
type WorkloadSpec struct {
	ID         string
	Name       string
	SpaceID    string
	Map        string
	GameMode   string
	Image      string
	Host       string
	MaxPlayers int
}

// Endpoint is the network address assigned to a provisioned workload. Port 0
// means the cluster controller has not bound the instance yet.
type Endpoint struct {
	Host string
	Port int
}

// RawResource is an opaque view of a scheduler-side resource, for listing
// and reconciliation.
type RawResource struct {
	Name   string
	Labels map[string]string
}

// Adapter provisions and tears down workload resources in the cluster
// scheduler. Implementations must honor ctx cancellation; callers wrap every
// call in an explicit timeout.
type Adapter interface {
	CreateWorkload(ctx context.Context, spec WorkloadSpec) (Endpoint, error)
	DeleteWorkload(ctx context.Context, id string) error
	ListWorkloads(ctx context.Context) ([]RawResource, error)
}

// ResourceName is the scheduler-side name for a workload id. The id is a
// bare uuid; resource names strip the dashes to stay DNS-label safe.
func ResourceName(id string) string {
	return "gs-" + strings.ReplaceAll(id, "-", "")
}
