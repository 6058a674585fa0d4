// Package domain defines the core data model for batch message
// orchestration: batch requests and messages, per-message results,
// lifecycle events and the orchestration error taxonomy.
package domain
