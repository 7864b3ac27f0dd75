// Package services implements the core business logic: source ingestion,
// the pipeline worker loop, memory policy, retrieval feedback, context
// handoff, and the retrieval orchestrator. Services depend only on the
// port interfaces, never on concrete adapters.
package services
