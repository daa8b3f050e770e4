package config

import (
	"os"
	"path/filepath"
	"testing"

	"ai-genbot-gateway/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadQuotas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quota.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_limits:\n  video-gen: 4\n  tts: -1\n"), 0o600))

	t.Setenv("QUOTA_IMAGE_GEN", "7")

	q, err := LoadQuotas(path)
	require.NoError(t, err)

	tests := []struct {
		kind    entity.GenerationKind
		limit   int
		limited bool
	}{
		{entity.KindVideoGen, 4, true},
		{entity.KindImageGen, 7, true},
		{entity.KindTTS, 0, true},
		{entity.KindTextChat, 0, false},
		{entity.KindMusicGen, 5, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			limit, limited := q.Limit(tt.kind)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.limited, limited)
		})
	}
}

func TestLoadQuotasMissingFileUsesDefaults(t *testing.T) {
	q, err := LoadQuotas(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	limit, limited := q.Limit(entity.KindVideoGen)
	assert.True(t, limited)
	assert.Equal(t, 2, limit)
}

func TestLoadQuotasRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_limits:\n  hologram: 1\n"), 0o600))

	_, err := LoadQuotas(path)
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	t.Setenv("TEST_DUR_A", "90s")
	t.Setenv("TEST_DUR_B", "45")
	t.Setenv("TEST_DUR_MAP", "runway=900s, pika=300")

	assert.Equal(t, "1m30s", getEnvAsDuration("TEST_DUR_A", 0).String())
	assert.Equal(t, "45s", getEnvAsDuration("TEST_DUR_B", 0).String())

	m := getEnvAsDurationMap("TEST_DUR_MAP")
	assert.Equal(t, "15m0s", m["runway"].String())
	assert.Equal(t, "5m0s", m["pika"].String())
}
