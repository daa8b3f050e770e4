// FILE: internal/entity/generation_entity.go
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// GenerationRecord is written once per delivered artifact and is what the
// quota gate counts.
type GenerationRecord struct {
	ID           uuid.UUID
	UserID       int64
	Kind         GenerationKind
	Provider     string
	JobID        string
	PromptDigest string
	CreatedAt    time.Time
}

func PromptDigest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// MetricsFlush is one batch of counter deltas. ID makes re-applying it a no-op.
type MetricsFlush struct {
	ID       string
	Commands map[string]int64
	Models   map[string]int64
	Errors   map[string]int64
	Window   *ResponseWindow
	Created  time.Time
}

func (f *MetricsFlush) Empty() bool {
	return len(f.Commands) == 0 && len(f.Models) == 0 && len(f.Errors) == 0 && f.Window == nil
}

type ResponseWindow struct {
	Start   time.Time
	End     time.Time
	Samples int
	Avg     float64
	Min     float64
	Max     float64
}

type UsageTotals struct {
	Commands map[string]int64
	Models   map[string]int64
	Errors   map[string]int64
	Windows  []ResponseWindow
}
