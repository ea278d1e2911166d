package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// gatewayVersions are checked in order of preference.
var gatewayVersions = []string{"v1", "v1beta1", "v1alpha2"}

// Discoverer builds a ClusterGatewayConfig from what a cluster serves: the
// route kinds of the Gateway API group and the first Gateway object found.
type Discoverer struct {
	discovery discovery.DiscoveryInterface
	dynamic   dynamic.Interface
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(disc discovery.DiscoveryInterface, dyn dynamic.Interface) *Discoverer {
	return &Discoverer{discovery: disc, dynamic: dyn}
}

// Discover reads the gateway capability of the cluster. A cluster without
// the Gateway API yields an empty config and no error.
func (d *Discoverer) Discover(ctx context.Context) (api.ClusterGatewayConfig, error) {
	var (
		cfg            api.ClusterGatewayConfig
		kinds          = map[string]bool{}
		gatewayVersion string
	)

	for _, version := range gatewayVersions {
		gv := api.GatewayAPIGroup + "/" + version
		list, err := d.discovery.ServerResourcesForGroupVersion(gv)
		if apierrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("discover %s: %w", gv, err)
		}
		for _, res := range list.APIResources {
			if strings.Contains(res.Name, "/") {
				continue
			}
			if strings.HasSuffix(res.Kind, "Route") {
				kinds[res.Kind] = true
			}
			if res.Kind == "Gateway" && gatewayVersion == "" {
				gatewayVersion = version
			}
		}
	}

	for kind := range kinds {
		cfg.RouteKinds = append(cfg.RouteKinds, kind)
	}
	sort.Strings(cfg.RouteKinds)

	if gatewayVersion == "" {
		logging.Debug(api.SubsystemCapability, "Gateway API not served by cluster")
		return cfg, nil
	}

	gvr := schema.GroupVersionResource{Group: api.GatewayAPIGroup, Version: gatewayVersion, Resource: "gateways"}
	gateways, err := d.dynamic.Resource(gvr).List(ctx, metav1.ListOptions{})
	if err != nil {
		return cfg, fmt.Errorf("list gateways: %w", err)
	}
	items := gateways.Items
	sort.Slice(items, func(i, j int) bool {
		if items[i].GetNamespace() != items[j].GetNamespace() {
			return items[i].GetNamespace() < items[j].GetNamespace()
		}
		return items[i].GetName() < items[j].GetName()
	})
	if len(items) > 0 {
		cfg.Reference = &api.GatewayReference{Namespace: items[0].GetNamespace(), Name: items[0].GetName()}
	}

	logging.Debug(api.SubsystemCapability, "Discovered gateway %v with route kinds %v", cfg.Reference, cfg.RouteKinds)
	return cfg, nil
}
