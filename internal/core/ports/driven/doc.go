// Package driven defines the interfaces the core depends on: relational
// stores, the artifact filesystem, and external model services. Adapters
// implement these; core services only see the interfaces, so tests can
// substitute stubs.
package driven
