// Package websocket streams batch lifecycle events to clients.
package websocket
