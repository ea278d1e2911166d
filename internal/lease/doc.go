// Package lease provides per-instance mutual exclusion for sync runs.
//
// A lease is taken before a run starts and released when it ends. Leases
// expire after a bounded hold time so a crashed engine cannot block an
// instance forever. Conflicts are reported immediately as *api.LockError;
// callers never wait for a lease.
//
// MemoryLocker serves a single engine process. KubernetesLocker stores
// leases as coordination.k8s.io/v1 Lease objects for engines running with
// several replicas.
package lease
