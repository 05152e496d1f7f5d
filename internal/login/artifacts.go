// internal/login/artifacts.go
package login

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
)

const (
	// ErrorArtifact is the stem of the screenshot taken when an attempt turns fatal.
	ErrorArtifact = "99_error"
	TraceArtifact = "trace.zip"
	ReportFile    = "attempt.json"
)

// Report is the machine-readable summary written next to the screenshots.
type Report struct {
	Attempt *Attempt `json:"attempt"`
	State   State    `json:"state"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ArtifactStore owns the fixed artifact directory of an attempt.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore returns a store rooted at dir. Nothing is created until Ensure.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir is the artifact directory.
func (s *ArtifactStore) Dir() string { return s.dir }

// Ensure creates the directory if it does not exist.
func (s *ArtifactStore) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", s.dir, err)
	}
	return nil
}

// ScreenshotPath returns the path for screenshot stem, e.g. "01_loaded".
func (s *ArtifactStore) ScreenshotPath(stem string) string {
	return filepath.Join(s.dir, stem+".png")
}

// PhaseScreenshotPath names the screenshot for a phase boundary by index and name.
func (s *ArtifactStore) PhaseScreenshotPath(p Phase) string {
	info, ok := phaseOrder[p]
	if !ok {
		return s.ScreenshotPath(string(p))
	}
	return s.ScreenshotPath(fmt.Sprintf("%02d_%s", info.index, info.stem))
}

// TracePath is where the attempt's trace bundle goes.
func (s *ArtifactStore) TracePath() string {
	return filepath.Join(s.dir, TraceArtifact)
}

// WriteReport serializes r to attempt.json.
func (s *ArtifactStore) WriteReport(r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode attempt report: %w", err)
	}
	path := filepath.Join(s.dir, ReportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
