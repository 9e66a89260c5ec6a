package upload

import (
	"fmt"
	"strings"

	"fhirsync/internal/config"
)

// DefaultBundleSize caps the entries of one transaction bundle when the
// configuration leaves it unset.
const DefaultBundleSize = 500

// Mode controls how changes become requests and how their results are
// consolidated.
type Mode struct {
	// Bundle wraps requests in transaction bundles instead of sending them
	// one per URL.
	Bundle bool
	// CreateVerb is POST (server assigns ids) or PUT (client ids are kept).
	CreateVerb Method
	BundleSize int
}

// ModeFromConfig validates the upload configuration.
func ModeFromConfig(cfg config.UploadConfig) (Mode, error) {
	var m Mode
	switch cfg.Mode {
	case "bundle", "":
		m.Bundle = true
	case "url":
	default:
		return Mode{}, fmt.Errorf("unknown upload mode: %s", cfg.Mode)
	}

	switch verb := Method(strings.ToUpper(cfg.HTTPVerbForCreate)); verb {
	case MethodPut, "":
		m.CreateVerb = MethodPut
	case MethodPost:
		m.CreateVerb = MethodPost
	default:
		return Mode{}, fmt.Errorf("unsupported http verb for create: %s", cfg.HTTPVerbForCreate)
	}

	switch {
	case cfg.BundleSize < 0:
		return Mode{}, fmt.Errorf("bundle_size must not be negative, got %d", cfg.BundleSize)
	case cfg.BundleSize == 0:
		m.BundleSize = DefaultBundleSize
	default:
		m.BundleSize = cfg.BundleSize
	}
	return m, nil
}
