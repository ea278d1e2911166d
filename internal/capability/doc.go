// Package capability decides, per sync and per cluster, whether a webapp's
// requested visibility can actually be served.
//
// Private and public visibility need a Gateway API gateway on the cluster and
// a route kind matching the webapp protocol (http and https use HTTPRoute,
// grpc GRPCRoute, tls TLSRoute, tcp TCPRoute, udp UDPRoute). When either is
// missing the component is deployed with cluster visibility and the sync
// reports a CapabilityError warning; the stored Component is never changed.
//
// The gateway config is either configured statically per cluster or read
// from the cluster with a Discoverer. Neither is cached across syncs.
package capability
