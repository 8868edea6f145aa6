// Package storage persists job definitions and the append-only run history.
//
// Two drivers are provided: "sqlite" (the default, a single database file)
// and "memory" (ephemeral, mostly for tests). Both implement the same Store
// interface so the scheduler never cares which one is underneath.
package storage
