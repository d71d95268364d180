package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const procFilename = "reportbrief.pid"

// procRecord is what a running daemon leaves in its data directory so that
// stop and status can find it.
type procRecord struct {
	PID     int       `json:"pid"`
	Addr    string    `json:"addr"`
	TLS     bool      `json:"tls,omitempty"`
	Started time.Time `json:"started"`
	Version string    `json:"version,omitempty"`
}

// URL returns the base URL the daemon listens on. Wildcard hosts are
// rewritten to localhost.
func (r procRecord) URL() string {
	scheme := "http"
	if r.TLS {
		scheme = "https"
	}
	addr := r.Addr
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		addr = net.JoinHostPort("localhost", port)
	}
	return scheme + "://" + addr
}

func procPath(dataDir string) string {
	return filepath.Join(dataDir, procFilename)
}

// writeProc records the current process in dataDir, creating it if needed.
// The file is written to a temp name and renamed so readers never see a
// partial record.
func writeProc(dataDir string, rec procRecord) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("daemon: creating %s: %w", dataDir, err)
	}
	if rec.PID == 0 {
		rec.PID = os.Getpid()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("daemon: encoding process record: %w", err)
	}

	path := procPath(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("daemon: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("daemon: writing %s: %w", path, err)
	}
	return nil
}

// readProc loads the record from dataDir. A missing file is reported with an
// error wrapping fs.ErrNotExist.
func readProc(dataDir string) (procRecord, error) {
	var rec procRecord
	data, err := os.ReadFile(procPath(dataDir))
	if err != nil {
		return rec, fmt.Errorf("daemon: reading process record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("daemon: parsing process record: %w", err)
	}
	if rec.PID <= 0 {
		return rec, fmt.Errorf("daemon: process record has invalid pid %d", rec.PID)
	}
	return rec, nil
}

func removeProc(dataDir string) error {
	if err := os.Remove(procPath(dataDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("daemon: removing process record: %w", err)
	}
	return nil
}

// running returns the record of a live daemon. A record whose process is
// gone counts as not running.
func running(dataDir string) (procRecord, bool) {
	rec, err := readProc(dataDir)
	if err != nil {
		return rec, false
	}
	return rec, alive(rec.PID)
}

// alive reports whether pid exists, using signal 0.
func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
