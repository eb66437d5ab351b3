// Package history records the outcome of every program run.
//
// Runs are stored through gorm in SQLite (the default, a local file) or
// MySQL, keyed by a UUID and indexed by session. List pages through a
// session's runs, newest first by default.
package history
