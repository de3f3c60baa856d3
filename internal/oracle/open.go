package oracle

import (
	"fmt"

	"provenance/internal/config"
	"provenance/internal/services"
)

// Open constructs the Oracle selected by the oracle config section.
func Open(cfg config.Oracle) (Oracle, error) {
	switch cfg.Backend {
	case config.OracleHTTP, "":
		return NewClient(Config{
			URL:            cfg.URL,
			APIToken:       cfg.APIToken,
			Model:          cfg.Model,
			Threshold:      cfg.Threshold,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}), nil
	case config.OracleFixed:
		return NewFixed(cfg.FixedScore, cfg.Threshold), nil
	default:
		return nil, fmt.Errorf("%w: unsupported oracle backend %q", services.ErrConfiguration, cfg.Backend)
	}
}
