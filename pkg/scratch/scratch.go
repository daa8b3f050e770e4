package scratch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ai-genbot-gateway/internal/pkg/logger"
)

// Manager hands out one directory per job under a common root and removes
// leftovers of jobs that are no longer live.
type Manager struct {
	root   string
	logger logger.ILogger

	mu   sync.Mutex
	live map[string]struct{}
}

func NewManager(root string, log logger.ILogger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("scratch root %s: %w", root, err)
	}
	return &Manager{root: root, logger: log, live: make(map[string]struct{})}, nil
}

func (m *Manager) Root() string { return m.root }

// Acquire creates (or reuses, on redelivery) the job's directory.
func (m *Manager) Acquire(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(m.root, jobID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.live[jobID] = struct{}{}
	m.mu.Unlock()
	return dir, nil
}

// Release deletes the job's directory. Safe to call more than once.
func (m *Manager) Release(jobID string) {
	m.mu.Lock()
	delete(m.live, jobID)
	m.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(m.root, jobID)); err != nil {
		m.logger.Warn("SCRATCH", "Failed to remove job dir", map[string]interface{}{
			"jobId": jobID,
			"error": err.Error(),
		})
	}
}

// Sweep removes every directory under root whose job is not live and that
// is older than grace. It returns the number of removed directories.
func (m *Manager) Sweep(grace time.Duration) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("SCRATCH", "Failed to list scratch root", map[string]interface{}{"error": err.Error()})
		return 0
	}

	m.mu.Lock()
	live := make(map[string]struct{}, len(m.live))
	for id := range m.live {
		live[id] = struct{}{}
	}
	m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-grace)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := live[e.Name()]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("SCRATCH", "Swept stale job dirs", map[string]interface{}{"removed": removed})
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, every, grace time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(grace)
		}
	}
}
