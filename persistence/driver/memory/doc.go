// Package memory provides in-memory implementations of the persistence
// contracts, intended for testing and development.
package memory
