// Package monitor implements the per-worker episode journal: one JSON
// Lines file per CPU index, flushed after every record.
//
// Mirrors the logging package's posture (package-level, silently
// degrading on failure rather than propagating an error the caller
// must handle): a missing/unwritable monitor directory never aborts
// the worker.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atari-vecgym/vecgym-worker/internal/logging"
)

type header struct {
	TStart     float64 `json:"t_start"`
	GymVersion string  `json:"gym_version"`
	EnvID      string  `json:"env_id"`
}

type record struct {
	R float32 `json:"r"`
	L int32   `json:"l"`
	T float64 `json:"t"`
}

// Monitor journals one episode record per line to <dir>/<cpu:03d>.monitor.json.
// A zero-value or failed-to-open Monitor is a valid, silently-disabled
// journal: Record and Close become no-ops.
type Monitor struct {
	file    *os.File
	tStart  time.Time
	enabled bool
}

// Open creates the monitor file for the given cpu index under dir and
// writes its header line. If dir is empty, or the file cannot be
// created, the returned Monitor is disabled and every subsequent
// Record call is a no-op; the caller never needs to check an error.
func Open(dir string, cpu int, envID string) *Monitor {
	if dir == "" {
		return &Monitor{}
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d.monitor.json", cpu))
	f, err := os.Create(path)
	if err != nil {
		logging.Warn("monitor: disabling journal", "cpu", cpu, "path", path, "err", err)
		return &Monitor{}
	}

	m := &Monitor{file: f, tStart: time.Now(), enabled: true}
	hdr := header{
		TStart:     float64(m.tStart.UnixNano()) / 1e9,
		GymVersion: "vecgym",
		EnvID:      envID,
	}
	if err := m.writeLine(hdr); err != nil {
		logging.Warn("monitor: disabling journal after header write failure", "cpu", cpu, "err", err)
		f.Close()
		return &Monitor{}
	}
	return m
}

// Record journals one finished episode: its raw cumulative score, its
// length in frames, and the wall-clock time since the header was
// written.
func (m *Monitor) Record(score float32, length int32) {
	if m == nil || !m.enabled {
		return
	}
	rec := record{
		R: score,
		L: length,
		T: time.Since(m.tStart).Seconds(),
	}
	if err := m.writeLine(rec); err != nil {
		logging.Warn("monitor: write failed, disabling journal", "err", err)
		m.enabled = false
		m.file.Close()
	}
}

// Close flushes and closes the journal. Safe on a disabled or nil Monitor.
func (m *Monitor) Close() error {
	if m == nil || !m.enabled {
		return nil
	}
	m.enabled = false
	return m.file.Close()
}

func (m *Monitor) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := m.file.Write(b); err != nil {
		return err
	}
	return m.file.Sync()
}
