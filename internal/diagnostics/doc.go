// Package diagnostics reports the host conditions the settings stores
// depend on.
//
// Storage writes are atomic renames next to the target file, so a nearly
// full filesystem fails a save even when the stored document is tiny.
// StorageDisk measures the filesystem holding a storage path and
// SystemMetrics adds the host memory for `bsqa doctor`.
package diagnostics
