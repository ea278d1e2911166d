package api

// Ownership metadata written on every object the engine emits.
const (
	// LabelManagedBy marks an object as platform managed.
	LabelManagedBy = "app.kubernetes.io/managed-by"
	// ManagedByValue is the LabelManagedBy value used by the engine.
	ManagedByValue = "shipyard"
	// LabelInstance carries the owning Instance UUID.
	LabelInstance = "shipyard.io/instance"
	// LabelComponent carries the owning Component UUID.
	LabelComponent = "shipyard.io/component"

	// AnnotationOwner carries "<instance uuid>/<component uuid>". It must agree
	// with the labels for an object to count as owned.
	AnnotationOwner = "shipyard.io/owner"
	// AnnotationDigest is the content digest of the last applied document.
	AnnotationDigest = "shipyard.io/digest"
	// AnnotationComponentName is informational only.
	AnnotationComponentName = "shipyard.io/component-name"
	// AnnotationTemplate names the template a document was rendered from.
	AnnotationTemplate = "shipyard.io/template"
)

// Gateway API group and route kinds the capability detector understands.
const (
	GatewayAPIGroup = "gateway.networking.k8s.io"

	RouteKindHTTP = "HTTPRoute"
	RouteKindGRPC = "GRPCRoute"
	RouteKindTLS  = "TLSRoute"
	RouteKindTCP  = "TCPRoute"
	RouteKindUDP  = "UDPRoute"
)

// Subsystem names used for logging.
const (
	SubsystemOrchestrator = "Orchestrator"
	SubsystemApplier      = "Applier"
	SubsystemPlanner      = "Planner"
	SubsystemTemplate     = "Template"
	SubsystemCapability   = "Capability"
	SubsystemLease        = "Lease"
	SubsystemStore        = "Store"
	SubsystemCluster      = "Cluster"
	SubsystemServer       = "Server"
	SubsystemReconciler   = "Reconciler"
	SubsystemApp          = "App"
	SubsystemEvents       = "Events"
)
