package powershell

import (
	"context"
	"fmt"

	"github.com/rbias/clusterpulse/internal/cluster"
)

// Targets maps a cluster name to the address used to reach it.
type Targets interface {
	Target(name string) string
}

// Topology reads live cluster state with the FailoverClusters module.
type Topology struct {
	exec    Executor
	targets Targets
}

// NewTopology creates a Topology. A nil targets addresses clusters by name.
func NewTopology(exec Executor, targets Targets) *Topology {
	return &Topology{exec: exec, targets: targets}
}

type psCluster struct {
	Name string `json:"Name"`
}

type psNode struct {
	Name  string `json:"Name"`
	State string `json:"State"`
}

type psGroup struct {
	Name      string      `json:"Name"`
	OwnerNode string      `json:"OwnerNode"`
	State     stateString `json:"State"`
}

type psResource struct {
	Name       string      `json:"Name"`
	OwnerGroup string      `json:"OwnerGroup"`
	OwnerNode  string      `json:"OwnerNode"`
	State      stateString `json:"State"`
}

func (t *Topology) address(name string) string {
	if t.targets == nil {
		return name
	}
	return t.targets.Target(name)
}

// ResolveCluster implements cluster.Topology.
func (t *Topology) ResolveCluster(ctx context.Context, name string) (cluster.Handle, error) {
	addr := t.address(name)
	script := fmt.Sprintf("Get-Cluster -Name %s -ErrorAction Stop | Select-Object Name | ConvertTo-Json -Compress", quote(addr))

	out, err := t.exec.Run(ctx, script)
	if err != nil {
		if ctx.Err() != nil {
			return cluster.Handle{}, fmt.Errorf("resolve cluster %s: %w", name, err)
		}
		return cluster.Handle{}, fmt.Errorf("%w: %s: %w", cluster.ErrClusterNotFound, name, err)
	}
	found, err := decodeList[psCluster](out)
	if err != nil {
		return cluster.Handle{}, err
	}
	if len(found) == 0 || found[0].Name == "" {
		return cluster.Handle{}, fmt.Errorf("%w: %s", cluster.ErrClusterNotFound, name)
	}
	return cluster.Handle{Name: found[0].Name, Address: addr}, nil
}

// ListNodes implements cluster.Topology.
func (t *Topology) ListNodes(ctx context.Context, c cluster.Handle) ([]cluster.Node, error) {
	script := fmt.Sprintf("Get-ClusterNode -Cluster %s -ErrorAction Stop"+
		" | Select-Object Name, @{n='State';e={$_.State.ToString()}}"+
		" | ConvertTo-Json -Compress", quote(c.Address))

	out, err := t.exec.Run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("get nodes of %s: %w", c.Name, err)
	}
	found, err := decodeList[psNode](out)
	if err != nil {
		return nil, err
	}

	nodes := make([]cluster.Node, 0, len(found))
	for _, n := range found {
		nodes = append(nodes, cluster.Node{Name: n.Name, State: n.State})
	}
	return nodes, nil
}

// ListResourceGroups implements cluster.Topology. Groups keep the order
// Get-ClusterGroup returns them in.
func (t *Topology) ListResourceGroups(ctx context.Context, c cluster.Handle) ([]cluster.ResourceGroup, error) {
	script := fmt.Sprintf("Get-ClusterGroup -Cluster %s -ErrorAction Stop"+
		" | Select-Object Name, @{n='OwnerNode';e={$_.OwnerNode.Name}}, @{n='State';e={$_.State.ToString()}}"+
		" | ConvertTo-Json -Compress", quote(c.Address))

	out, err := t.exec.Run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("get resource groups of %s: %w", c.Name, err)
	}
	found, err := decodeList[psGroup](out)
	if err != nil {
		return nil, err
	}

	groups := make([]cluster.ResourceGroup, 0, len(found))
	for _, g := range found {
		groups = append(groups, cluster.ResourceGroup{Name: g.Name, OwnerNode: g.OwnerNode, State: string(g.State)})
	}
	return groups, nil
}

// ListResources implements cluster.Topology.
func (t *Topology) ListResources(ctx context.Context, c cluster.Handle, group cluster.ResourceGroup) ([]cluster.Resource, error) {
	script := fmt.Sprintf("Get-ClusterGroup -Cluster %s -Name %s -ErrorAction Stop | Get-ClusterResource"+
		" | Select-Object Name, @{n='OwnerGroup';e={$_.OwnerGroup.Name}}, @{n='OwnerNode';e={$_.OwnerNode.Name}}, @{n='State';e={$_.State.ToString()}}"+
		" | ConvertTo-Json -Compress", quote(c.Address), quote(group.Name))

	out, err := t.exec.Run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("get resources of group %s: %w", group.Name, err)
	}
	found, err := decodeList[psResource](out)
	if err != nil {
		return nil, err
	}

	resources := make([]cluster.Resource, 0, len(found))
	for _, r := range found {
		owner := r.OwnerGroup
		if owner == "" {
			owner = group.Name
		}
		resources = append(resources, cluster.Resource{
			Name:       r.Name,
			OwnerGroup: owner,
			OwnerNode:  r.OwnerNode,
			State:      string(r.State),
		})
	}
	return resources, nil
}
