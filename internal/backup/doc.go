// Package backup provides the storage drivers for the single per-device
// backup slot of an in-progress tracking session. Every driver keeps exactly
// one record per device and overwrites it on save (last writer wins).
package backup
