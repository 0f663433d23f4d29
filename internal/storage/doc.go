// Package storage persists the data stockbot keeps across restarts.
//
// It currently supports:
//   - Scheduled command entries, scoped per session owner
//   - Provider ticker hints (free text -> ticker)
package storage
