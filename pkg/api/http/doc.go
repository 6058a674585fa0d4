// Package http provides the REST API server for the batch orchestrator.
//
// Endpoints cover batch submission and abort, archived response
// retrieval, the out-of-band reply side channel, health and metrics.
package http
