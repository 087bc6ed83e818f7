// Package eventlog keeps an append-only JSONL journal of installer
// lifecycle events. Writes are best-effort so journaling never halts an
// install or uninstall.
package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/atomikpanda/nixup/internal/executor"
)

// journalName is the preferred journal location, next to the receipt.
const journalName = "/nix/.nixup-journal"

// Journal is an executor.Sink that appends every event to the journal file.
type Journal struct {
	path string
}

// New returns a Journal at the default path: /nix/.nixup-journal when the
// /nix directory is writable, the user cache directory otherwise.
func New() *Journal {
	return &Journal{path: Path()}
}

// At returns a Journal at an explicit path.
func At(path string) *Journal {
	return &Journal{path: path}
}

// Event implements executor.Sink. Errors are silently dropped.
func (j *Journal) Event(e executor.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	f.Write(append(line, '\n'))
}

// Read loads journal entries, returning the last limit entries (all when
// limit <= 0). Malformed lines are skipped.
func Read(limit int) ([]executor.Event, error) {
	return ReadFrom(Path(), limit)
}

// ReadFrom loads journal entries from an explicit path.
func ReadFrom(path string, limit int) ([]executor.Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []executor.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e executor.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Path returns the journal location for this process.
func Path() string {
	if dirWritable(filepath.Dir(journalName)) {
		return journalName
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return journalName
	}
	return filepath.Join(cache, "nixup", "journal")
}

func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".nixup-probe-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}
