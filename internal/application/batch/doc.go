// Package batch implements the core orchestration logic for batch message
// execution.
//
// The executor coordinates one batch at a time per call by:
//   - Validating message dependencies (dangling references, cycles)
//   - Checking cross-project permissions before anything is dispatched
//   - Partitioning messages into dependency levels and executing levels
//     strictly in order under a bounded concurrency limit
//   - Waiting for correlated replies under the requested wait strategy
//   - Publishing lifecycle events to the event bus
//
// The validator ensures batches are well-formed with no cycles and valid
// dependency references.
package batch
