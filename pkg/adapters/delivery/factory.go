package delivery

import (
	"fmt"
	"time"

	"github.com/aescanero/bago/pkg/adapters/delivery/anthropic"
	"github.com/aescanero/bago/pkg/ports"
	"go.uber.org/zap"
)

// Config holds delivery configuration
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewDeliverer creates a new deliverer based on provider
func NewDeliverer(cfg *Config) (ports.Deliverer, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewDeliverer(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.RequestTimeout, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported delivery provider: %s", cfg.Provider)
	}
}
