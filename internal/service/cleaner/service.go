// Package cleaner re-applies the current text cleaning rules to artifacts
// already on disk, so files produced before a rule change catch up without a
// fresh harvest.
package cleaner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/pkg/textclean"
)

// Stats reports what one pass over the data directory changed.
type Stats struct {
	FilesScanned   int `json:"files_scanned"`
	FilesRewritten int `json:"files_rewritten"`
	EntriesRemoved int `json:"entries_removed"`
}

type Service struct {
	dataDir string
}

func New(dataDir string) *Service {
	return &Service{dataDir: dataDir}
}

// Clean walks every JSON artifact in the data directory and rewrites the
// people_also_search_for lists through the current cleaning rules. The
// summary report is regenerated each run and skipped here.
func (s *Service) Clean() (*Stats, error) {
	pattern := filepath.Join(s.dataDir, "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
	}

	stats := &Stats{}
	for _, file := range files {
		if filepath.Base(file) == "summary_report.json" {
			continue
		}
		stats.FilesScanned++

		rewritten, removed, err := s.cleanFile(file)
		if err != nil {
			klog.Warningf("skipping %s: %v", filepath.Base(file), err)
			continue
		}
		if rewritten {
			stats.FilesRewritten++
			stats.EntriesRemoved += removed
		}
	}

	klog.V(6).Infof("cleaner pass: scanned=%d rewritten=%d removed=%d",
		stats.FilesScanned, stats.FilesRewritten, stats.EntriesRemoved)
	return stats, nil
}

// cleanFile handles both artifact shapes: a single keyword object and the
// combined all_keywords array.
func (s *Service) cleanFile(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0, fmt.Errorf("read failed: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return false, 0, fmt.Errorf("invalid JSON: %w", err)
	}

	removed := 0
	changed := false
	switch value := raw.(type) {
	case map[string]any:
		changed, removed = cleanEntry(value)
	case []any:
		for _, item := range value {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			entryChanged, entryRemoved := cleanEntry(entry)
			changed = changed || entryChanged
			removed += entryRemoved
		}
	default:
		return false, 0, nil
	}

	if !changed {
		return false, 0, nil
	}

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return false, 0, fmt.Errorf("marshal failed: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, 0, fmt.Errorf("write failed: %w", err)
	}
	return true, removed, nil
}

// cleanEntry rewrites entry["people_also_search_for"] in place and reports
// whether the list changed and how many entries were dropped.
func cleanEntry(entry map[string]any) (bool, int) {
	raw, ok := entry["people_also_search_for"].([]any)
	if !ok {
		return false, 0
	}

	var cleaned []string
	for _, item := range raw {
		text, ok := item.(string)
		if !ok {
			continue
		}
		value := textclean.Clean(text)
		if value == "" || !textclean.IsValidKeyword(value) {
			continue
		}
		cleaned = append(cleaned, value)
	}
	cleaned = textclean.Dedupe(cleaned)

	if equalToRaw(cleaned, raw) {
		return false, 0
	}

	replacement := make([]any, len(cleaned))
	for i, value := range cleaned {
		replacement[i] = value
	}
	entry["people_also_search_for"] = replacement
	return true, len(raw) - len(cleaned)
}

func equalToRaw(cleaned []string, raw []any) bool {
	if len(cleaned) != len(raw) {
		return false
	}
	for i, item := range raw {
		text, ok := item.(string)
		if !ok || text != cleaned[i] {
			return false
		}
	}
	return true
}
