// Package scheduler owns job definitions and decides when they fire.
//
// A single timer goroutine sleeps until the earliest next fire across all
// unpaused jobs, dispatches what is due, and persists each job's recomputed
// next fire before moving on. Mutations (create/pause/resume/delete) kick the
// loop so the timer is never stale.
package scheduler
