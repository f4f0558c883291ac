package report

import (
	"context"
	"fmt"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/correlate"
	"github.com/rbias/clusterpulse/internal/events"
)

// ResourceLister lists the resources owned by a group.
type ResourceLister interface {
	ListResources(ctx context.Context, c cluster.Handle, group cluster.ResourceGroup) ([]cluster.Resource, error)
}

// AssembleInput is everything the assembler joins into rows.
type AssembleInput struct {
	Cluster  cluster.Handle
	Groups   []cluster.ResourceGroup
	Streams  map[events.Category]events.Stream
	Matcher  correlate.Matcher
	Detailed bool
	// Resources is only consulted when Detailed is set.
	Resources ResourceLister
}

// groupTimes holds the four correlated timestamps of one group.
type groupTimes struct {
	online, offline, failed, degraded correlate.Timestamp
}

func correlateGroup(in *AssembleInput, name string) groupTimes {
	return groupTimes{
		online:   correlate.MostRecentOrNA(in.Streams[events.CameOnline], name, in.Matcher),
		offline:  correlate.MostRecentOrNA(in.Streams[events.WentOffline], name, in.Matcher),
		failed:   correlate.MostRecentOrNA(in.Streams[events.EnteredError], name, in.Matcher),
		degraded: correlate.MostRecentOrNA(in.Streams[events.EnteredDegraded], name, in.Matcher),
	}
}

// Assemble emits one row per group, or one row per resource when detailed.
// Group order follows in.Groups.
//
// Group rows surface LastDegraded but not LastError; resource rows surface
// LastError but not LastDegraded. All four are computed either way.
func Assemble(ctx context.Context, in AssembleInput) (*Report, error) {
	if in.Matcher == nil {
		in.Matcher = correlate.Substring{}
	}
	if in.Detailed && in.Resources == nil {
		return nil, fmt.Errorf("detailed report requires a resource lister")
	}

	rep := &Report{
		Cluster:  in.Cluster.Name,
		Detailed: in.Detailed,
	}

	for _, group := range in.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		times := correlateGroup(&in, group.Name)

		if !in.Detailed {
			rep.GroupRows = append(rep.GroupRows, GroupRow{
				ClusterType:    cluster.ClusterType,
				ClusterName:    in.Cluster.Name,
				ResourceGroup:  group.Name,
				ServerName:     group.OwnerNode,
				ResourceStatus: group.State,
				LastOnline:     times.online,
				LastOffline:    times.offline,
				LastDegraded:   times.degraded,
			})
			continue
		}

		resources, err := in.Resources.ListResources(ctx, in.Cluster, group)
		if err != nil {
			return nil, fmt.Errorf("%w: list resources of group %q: %w", ErrTopologyFetch, group.Name, err)
		}
		for _, res := range resources {
			rep.ResourceRows = append(rep.ResourceRows, ResourceRow{
				ClusterType:    cluster.ClusterType,
				ClusterName:    in.Cluster.Name,
				ResourceGroup:  group.Name,
				Resource:       res.Name,
				ServerName:     res.OwnerNode,
				ResourceStatus: res.State,
				LastOnline:     times.online,
				LastOffline:    times.offline,
				LastError:      times.failed,
			})
		}
	}

	return rep, nil
}
