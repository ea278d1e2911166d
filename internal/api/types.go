package api

import (
	"fmt"
	"strings"
)

// ComponentType is the closed set of component kinds. Adding a value is a
// deliberate change: every switch over ComponentType in the engine must be
// extended (see template.validateSettings and capability.Resolve).
type ComponentType string

const (
	ComponentTypeWebapp ComponentType = "webapp"
	ComponentTypeWorker ComponentType = "worker"
	ComponentTypeCron   ComponentType = "cron"
)

// ComponentTypes lists every supported component type.
var ComponentTypes = []ComponentType{ComponentTypeWebapp, ComponentTypeWorker, ComponentTypeCron}

// Valid reports whether t is one of the supported component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentTypeWebapp, ComponentTypeWorker, ComponentTypeCron:
		return true
	}
	return false
}

// Visibility is the intended network exposure of a webapp.
type Visibility string

const (
	VisibilityCluster Visibility = "cluster"
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility. The empty value is treated
// as cluster by callers and is valid.
func (v Visibility) Valid() bool {
	switch v {
	case "", VisibilityCluster, VisibilityPrivate, VisibilityPublic:
		return true
	}
	return false
}

// Routed reports whether v needs a gateway route.
func (v Visibility) Routed() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Protocol is the exposure protocol of a webapp.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolGRPC  Protocol = "grpc"
	ProtocolTLS   Protocol = "tls"
	ProtocolTCP   Protocol = "tcp"
	ProtocolUDP   Protocol = "udp"
)

// RouteKind returns the Gateway API route kind able to carry p, or "" for an
// unknown protocol.
func (p Protocol) RouteKind() string {
	switch Protocol(strings.ToLower(string(p))) {
	case ProtocolHTTP, ProtocolHTTPS:
		return RouteKindHTTP
	case ProtocolGRPC:
		return RouteKindGRPC
	case ProtocolTLS:
		return RouteKindTLS
	case ProtocolTCP:
		return RouteKindTCP
	case ProtocolUDP:
		return RouteKindUDP
	}
	return ""
}

// Application is a logical project grouping. The engine never mutates it.
type Application struct {
	UUID string `yaml:"uuid" json:"uuid"`
	Name string `yaml:"name" json:"name"`
}

// Environment is a deployment stage (dev, staging, prod...). Settings are
// environment wide key/value pairs exposed to every template as .env.
type Environment struct {
	UUID     string            `yaml:"uuid" json:"uuid"`
	Name     string            `yaml:"name" json:"name"`
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Instance is one deployment of an Application into one Environment.
type Instance struct {
	UUID        string      `yaml:"uuid" json:"uuid"`
	Application Application `yaml:"application" json:"application"`
	Environment Environment `yaml:"environment" json:"environment"`

	// Namespace overrides the target namespace, which defaults to the
	// application name.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	Image   string `yaml:"image" json:"image"`
	Version string `yaml:"version" json:"version"`

	Components []Component `yaml:"components,omitempty" json:"components,omitempty"`
}

// TargetNamespace returns the namespace every document of the instance is
// rendered into.
func (i *Instance) TargetNamespace() string {
	if i.Namespace != "" {
		return i.Namespace
	}
	return i.Application.Name
}

// EnabledComponents returns the enabled components in declaration order.
func (i *Instance) EnabledComponents() []Component {
	out := make([]Component, 0, len(i.Components))
	for _, c := range i.Components {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Component returns the component with the given UUID.
func (i *Instance) Component(uuid string) (Component, bool) {
	for _, c := range i.Components {
		if c.UUID == uuid {
			return c, true
		}
	}
	return Component{}, false
}

// Validate checks the structural invariants of an instance: identity fields
// are present, component names and UUIDs are unique, types and visibilities
// are known.
func (i *Instance) Validate() error {
	if i.UUID == "" {
		return fmt.Errorf("instance uuid is required")
	}
	if i.TargetNamespace() == "" {
		return fmt.Errorf("instance %s has no application name or namespace", i.UUID)
	}
	names := make(map[string]bool, len(i.Components))
	uuids := make(map[string]bool, len(i.Components))
	for _, c := range i.Components {
		if c.UUID == "" {
			return fmt.Errorf("component %q has no uuid", c.Name)
		}
		if c.Name == "" || strings.ContainsAny(c.Name, " \t") {
			return fmt.Errorf("component %s has an invalid name %q", c.UUID, c.Name)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate component name %q in instance %s", c.Name, i.UUID)
		}
		if uuids[c.UUID] {
			return fmt.Errorf("duplicate component uuid %s in instance %s", c.UUID, i.UUID)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("component %q has unsupported type %q", c.Name, c.Type)
		}
		if !c.Visibility.Valid() {
			return fmt.Errorf("component %q has unsupported visibility %q", c.Name, c.Visibility)
		}
		names[c.Name] = true
		uuids[c.UUID] = true
	}
	return nil
}

// Component is a functional unit within an Instance.
type Component struct {
	UUID       string            `yaml:"uuid" json:"uuid"`
	Name       string            `yaml:"name" json:"name"`
	Type       ComponentType     `yaml:"type" json:"type"`
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Visibility Visibility        `yaml:"visibility,omitempty" json:"visibility,omitempty"`
	Settings   ComponentSettings `yaml:"settings" json:"settings"`

	// TemplateVersion pins the template set; empty selects the latest.
	TemplateVersion string `yaml:"templateVersion,omitempty" json:"templateVersion,omitempty"`
}

// RequestedVisibility returns the persisted visibility, defaulting to cluster.
func (c Component) RequestedVisibility() Visibility {
	if c.Visibility == "" {
		return VisibilityCluster
	}
	return c.Visibility
}

// GatewayReference points at a Gateway object on a cluster.
type GatewayReference struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Name      string `yaml:"name" json:"name"`
}

// String returns namespace/name.
func (r GatewayReference) String() string {
	return r.Namespace + "/" + r.Name
}

// ClusterGatewayConfig describes the routing capability of one cluster. It is
// owned by the cluster registration workflow and read-only to the engine.
type ClusterGatewayConfig struct {
	Reference  *GatewayReference `yaml:"reference,omitempty" json:"reference,omitempty"`
	RouteKinds []string          `yaml:"routeKinds,omitempty" json:"routeKinds,omitempty"`

	// DiscoveryError is set when gateway discovery failed for this sync.
	DiscoveryError string `yaml:"-" json:"-"`
}

// HasGateway reports whether a gateway reference is configured.
func (g ClusterGatewayConfig) HasGateway() bool {
	return g.Reference != nil && g.Reference.Name != ""
}

// Supports reports whether the gateway advertises the route kind.
func (g ClusterGatewayConfig) Supports(kind string) bool {
	for _, k := range g.RouteKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// ExposureResolution is the output of the capability detector for one
// component in one sync.
type ExposureResolution struct {
	Requested Visibility `json:"requested"`
	Effective Visibility `json:"effective"`

	// RouteKind is empty when no route must be rendered.
	RouteKind string            `json:"routeKind,omitempty"`
	Gateway   *GatewayReference `json:"gateway,omitempty"`

	// Warning is set when the requested visibility was downgraded.
	Warning *CapabilityError `json:"-"`
}

// Routed reports whether a route resource must be rendered.
func (r ExposureResolution) Routed() bool {
	return r.RouteKind != ""
}
