package search

import (
	"fmt"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
)

// ProcessRequest validates req and applies the configured limit defaults.
func ProcessRequest(req *models.SearchRequest, cfg *config.SearchConfig) error {
	if cfg != nil && req.Limit == 0 && cfg.DefaultLimit > 0 {
		req.Limit = cfg.DefaultLimit
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if cfg != nil && cfg.MaxLimit > 0 && req.Limit > cfg.MaxLimit {
		req.Limit = cfg.MaxLimit
	}
	return nil
}

// ClampLimit applies the default and maximum to a limit given outside a
// SearchRequest, such as a query parameter.
func ClampLimit(limit, def, max int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("limit must be between 1 and %d", max)
	}
	if limit == 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit, nil
}
