// Package storage holds the per-user and per-project notification settings
// (the zulip_* metadata keys) and the project names used when a task's owning
// project has to be resolved by id.
//
// Drivers: memory, file (JSON snapshot), sqlite, redis, postgres.
package storage
