// Package driving defines the interfaces adapters call into the core
// through: ingestion, asking, worker control, and memory administration.
package driving
