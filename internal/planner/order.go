package planner

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"shipyard/internal/api"
)

// KnownKind is a kind the engine orders explicitly and lists on observation.
type KnownKind struct {
	GVK  schema.GroupVersionKind
	Rank int
}

// KnownKinds orders applies: lower ranks go first, deletes run in reverse.
// Config is read by workloads, services are referenced by routes, and
// autoscalers target workloads.
var KnownKinds = []KnownKind{
	{schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"}, 0},
	{schema.GroupVersionKind{Version: "v1", Kind: "Secret"}, 0},
	{schema.GroupVersionKind{Version: "v1", Kind: "ServiceAccount"}, 0},
	{schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "Role"}, 0},
	{schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "RoleBinding"}, 0},
	{schema.GroupVersionKind{Version: "v1", Kind: "PersistentVolumeClaim"}, 1},
	{schema.GroupVersionKind{Version: "v1", Kind: "Service"}, 2},
	{schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}, 3},
	{schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "StatefulSet"}, 3},
	{schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "DaemonSet"}, 3},
	{schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "CronJob"}, 3},
	{schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"}, 3},
	{schema.GroupVersionKind{Group: "autoscaling", Version: "v2", Kind: "HorizontalPodAutoscaler"}, 4},
	{schema.GroupVersionKind{Group: "policy", Version: "v1", Kind: "PodDisruptionBudget"}, 4},
	{schema.GroupVersionKind{Group: "networking.k8s.io", Version: "v1", Kind: "NetworkPolicy"}, 4},
	{schema.GroupVersionKind{Group: "networking.k8s.io", Version: "v1", Kind: "Ingress"}, 5},
	{schema.GroupVersionKind{Group: api.GatewayAPIGroup, Version: "v1", Kind: api.RouteKindHTTP}, 5},
	{schema.GroupVersionKind{Group: api.GatewayAPIGroup, Version: "v1", Kind: api.RouteKindGRPC}, 5},
	{schema.GroupVersionKind{Group: api.GatewayAPIGroup, Version: "v1alpha2", Kind: api.RouteKindTLS}, 5},
	{schema.GroupVersionKind{Group: api.GatewayAPIGroup, Version: "v1alpha2", Kind: api.RouteKindTCP}, 5},
	{schema.GroupVersionKind{Group: api.GatewayAPIGroup, Version: "v1alpha2", Kind: api.RouteKindUDP}, 5},
}

var rankByKind = func() map[string]int {
	m := make(map[string]int, len(KnownKinds))
	for _, k := range KnownKinds {
		m[k.GVK.Kind] = k.Rank
	}
	return m
}()

func kindRank(kind string) int {
	if rank, ok := rankByKind[kind]; ok {
		return rank
	}
	if strings.HasSuffix(kind, "Route") {
		return 5
	}
	return 3
}
