// Package delivery provides message delivery implementations.
//
// The factory creates deliverers based on provider configuration.
// Currently supports:
//   - Anthropic Claude agents
package delivery
