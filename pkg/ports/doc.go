// Package ports defines the interfaces between the orchestration core and
// its adapters: event bus, metrics, response archive and message delivery.
package ports
