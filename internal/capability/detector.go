package capability

import (
	"fmt"

	"shipyard/internal/api"
)

// Resolve decides the effective exposure of one component on a cluster.
//
// A private or public webapp keeps its visibility only when the cluster has a
// gateway reference and the gateway advertises the route kind required by
// the webapp protocol. Otherwise the effective visibility is cluster and the
// resolution carries a CapabilityError warning. Workers and cron jobs are
// never routed. The result depends only on the arguments, so callers must
// pass a gateway config read for the current sync.
func Resolve(gw api.ClusterGatewayConfig, comp api.Component) api.ExposureResolution {
	requested := comp.RequestedVisibility()
	clusterOnly := api.ExposureResolution{Requested: requested, Effective: api.VisibilityCluster}

	switch comp.Type {
	case api.ComponentTypeWorker, api.ComponentTypeCron:
		return clusterOnly
	case api.ComponentTypeWebapp:
	default:
		return clusterOnly
	}

	if !requested.Routed() {
		return clusterOnly
	}

	var kind string
	if comp.Settings.Webapp != nil {
		kind = comp.Settings.Webapp.Exposure.Protocol.RouteKind()
	}

	downgrade := func(reason string) api.ExposureResolution {
		if gw.DiscoveryError != "" {
			reason = fmt.Sprintf("%s (gateway discovery failed: %s)", reason, gw.DiscoveryError)
		}
		clusterOnly.Warning = &api.CapabilityError{
			ComponentName: comp.Name,
			Requested:     requested,
			RouteKind:     kind,
			Reason:        reason,
		}
		return clusterOnly
	}

	switch {
	case kind == "":
		return downgrade("exposure protocol has no route kind")
	case !gw.HasGateway():
		return downgrade("cluster has no gateway configured")
	case !gw.Supports(kind):
		return downgrade(fmt.Sprintf("gateway %s does not support %s", gw.Reference, kind))
	}

	ref := *gw.Reference
	return api.ExposureResolution{
		Requested: requested,
		Effective: requested,
		RouteKind: kind,
		Gateway:   &ref,
	}
}
