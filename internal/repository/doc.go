// Package repository defines the data access interfaces for the valley
// server.
//
// Only simulation run history is persisted. Sessions, layouts and results
// of the current run live in memory. The sqlite subpackage implements
// RunStore on an embedded SQLite database and migrates its schema on
// startup. Tests use in-memory databases.
package repository
