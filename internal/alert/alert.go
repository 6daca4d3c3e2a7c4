// Package alert writes structured alert records to disk. Alerts are the
// durable trail for conditions an operator must act on, such as a provider
// account running out of quota.
package alert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is one alert, serialized as a standalone YAML file.
type Record struct {
	Kind      string    `yaml:"kind"`
	Provider  string    `yaml:"provider"`
	Model     string    `yaml:"model,omitempty"`
	Stage     string    `yaml:"stage,omitempty"`
	ConceptID string    `yaml:"concept_id,omitempty"`
	Message   string    `yaml:"message"`
	CreatedAt time.Time `yaml:"created_at"`
}

const kindQuotaExhausted = "quota_exhausted"

// FileSink writes alert records into a directory, one YAML file per alert.
type FileSink struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewFileSink creates a sink writing into dir (created on first alert).
func NewFileSink(dir string, log *slog.Logger) *FileSink {
	if log == nil {
		log = slog.Default()
	}
	return &FileSink{dir: dir, log: log, now: time.Now}
}

// QuotaExhausted records a quota alert. Alerting is best-effort: a write
// failure is logged, never propagated into the pipeline.
func (s *FileSink) QuotaExhausted(provider, model, stage, conceptID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	rec := Record{
		Kind:      kindQuotaExhausted,
		Provider:  provider,
		Model:     model,
		Stage:     stage,
		ConceptID: conceptID,
		Message:   msg,
		CreatedAt: s.now().UTC(),
	}
	s.log.Error("provider quota exhausted",
		"provider", provider, "model", model, "stage", stage, "concept", conceptID)
	if werr := s.write(rec); werr != nil {
		s.log.Warn("failed to write alert record", "error", werr)
	}
}

func (s *FileSink) write(rec Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create alert directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s-%s.yaml",
		rec.CreatedAt.Format("20060102T150405.000000000"), rec.Kind, rec.Provider, rec.Model)
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write alert file: %w", err)
	}
	return nil
}

// List returns all recorded alerts, oldest first. A missing directory means
// no alerts.
func (s *FileSink) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read alert directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read alert %s: %w", name, err)
		}
		var rec Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("corrupt alert %s: %w", name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
