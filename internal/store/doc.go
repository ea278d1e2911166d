// Package store provides the persistence used by the sync engine: instances
// and their ownership inventories, sync run records, and versioned template
// sets. Instances and runs can be kept in memory or as files below the
// shipyard configuration directory.
package store
