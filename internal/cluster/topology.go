package cluster

import (
	"context"
	"errors"
)

// ErrClusterNotFound is returned when a cluster reference cannot be resolved.
var ErrClusterNotFound = errors.New("cluster not found")

// ErrInvalidName is returned for cluster names outside the NetBIOS/DNS
// character set.
var ErrInvalidName = errors.New("invalid cluster name")

// ClusterType is the platform tag carried by every report row.
const ClusterType = "MSCS"

// Handle identifies a resolved cluster.
type Handle struct {
	// Name is the cluster name as reported by the platform.
	Name string
	// Address is what collaborators use to reach the cluster.
	Address string
}

// Node is a cluster member.
type Node struct {
	Name  string `json:"name" yaml:"name"`
	State string `json:"state,omitempty" yaml:"state"`
}

// ResourceGroup is a live snapshot of a resource group.
type ResourceGroup struct {
	Name      string `json:"name" yaml:"name"`
	OwnerNode string `json:"owner_node" yaml:"owner_node"`
	State     string `json:"state" yaml:"state"`
}

// Resource is a live snapshot of a single resource.
type Resource struct {
	Name       string `json:"name" yaml:"name"`
	OwnerGroup string `json:"owner_group" yaml:"owner_group"`
	OwnerNode  string `json:"owner_node" yaml:"owner_node"`
	State      string `json:"state" yaml:"state"`
}

// Topology enumerates cluster membership and live group/resource state.
//
// ResolveCluster returns an error wrapping ErrClusterNotFound when the
// cluster does not exist. List methods return entities in the platform's
// own order; callers must not assume any sorting.
type Topology interface {
	ResolveCluster(ctx context.Context, name string) (Handle, error)
	ListNodes(ctx context.Context, c Handle) ([]Node, error)
	ListResourceGroups(ctx context.Context, c Handle) ([]ResourceGroup, error)
	ListResources(ctx context.Context, c Handle, group ResourceGroup) ([]Resource, error)
}

// NodeNames returns the names of nodes in order.
func NodeNames(nodes []Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
