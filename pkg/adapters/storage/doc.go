// Package storage provides batch response archive implementations.
//
// Implementations:
//   - redis: Redis with per-response TTL
//   - memory: In-memory for testing
package storage
