package ml

import (
	"fmt"

	"github.com/kiranshivaraju/redmeters/internal/config"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// NewScorer constructs the appropriate ML scorer based on config.
// Called once at server startup.
func NewScorer(cfg config.MLConfig) (models.MLScorer, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPScorer(cfg.HTTP, cfg.ScoreTimeout), nil
	case "subprocess":
		return NewSubprocessScorer(cfg.Subprocess, cfg.ScoreTimeout), nil
	default:
		return nil, fmt.Errorf("unknown ML mode %q: must be one of http, subprocess", cfg.Mode)
	}
}
