// FILE: internal/config/quota.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ai-genbot-gateway/internal/entity"

	"gopkg.in/yaml.v3"
)

// Quotas maps a generation kind to its daily limit per user.
// A missing or zero limit is unlimited; a negative limit disables the kind.
type Quotas map[entity.GenerationKind]int

type quotaFile struct {
	DailyLimits map[string]int `yaml:"daily_limits"`
}

func DefaultQuotas() Quotas {
	return Quotas{
		entity.KindImageGen:     20,
		entity.KindMusicGen:     5,
		entity.KindVideoGen:     2,
		entity.KindImageToVideo: 2,
		entity.KindBgRemove:     10,
		entity.KindImageUnzoom:  10,
	}
}

// LoadQuotas reads the YAML file (if present) over the defaults and then
// applies QUOTA_<KIND> environment overrides, e.g. QUOTA_VIDEO_GEN=3.
func LoadQuotas(path string) (Quotas, error) {
	quotas := DefaultQuotas()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read quota file: %w", err)
		default:
			var f quotaFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("parse quota file: %w", err)
			}
			for name, limit := range f.DailyLimits {
				kind, err := entity.ParseGenerationKind(name)
				if err != nil {
					return nil, fmt.Errorf("quota file: %w", err)
				}
				quotas[kind] = limit
			}
		}
	}

	for _, kind := range entity.AllGenerationKinds() {
		key := "QUOTA_" + strings.ToUpper(strings.ReplaceAll(string(kind), "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			limit, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			quotas[kind] = limit
		}
	}
	return quotas, nil
}

// Limit returns the limit and whether the kind is capped at all.
func (q Quotas) Limit(kind entity.GenerationKind) (int, bool) {
	limit, ok := q[kind]
	if !ok || limit == 0 {
		return 0, false
	}
	if limit < 0 {
		return 0, true
	}
	return limit, true
}
