package extractor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/serpwatch/serpwatch/internal/pkg/textclean"
)

// Summary aggregates a full run; it is written next to the keyword files so
// downstream consumers never have to re-parse the whole directory.
type Summary struct {
	Timestamp                     string  `json:"timestamp"`
	TotalKeywordsProcessed        int     `json:"total_keywords_processed"`
	TotalAutocompleteSuggestions  int     `json:"total_autocomplete_suggestions"`
	TotalPeopleAlsoAskQuestions   int     `json:"total_people_also_ask_questions"`
	TotalPeopleAlsoSearchFor      int     `json:"total_people_also_search_for"`
	AverageAutocompletePerKeyword float64 `json:"average_autocomplete_per_keyword"`
	AveragePAAPerKeyword          float64 `json:"average_paa_per_keyword"`
	AveragePASFPerKeyword         float64 `json:"average_pasf_per_keyword"`
	KeywordsWithEmptyPAA          int     `json:"keywords_with_empty_paa"`
	KeywordsWithEmptyPASF         int     `json:"keywords_with_empty_pasf"`
}

// SummaryFileName is skipped by the cleaner and overwritten every run.
const SummaryFileName = "summary_report.json"

// WriteResult writes one keyword's result to <dataDir>/<slug>.json and
// returns the file name.
func WriteResult(dataDir string, result *Result) (string, error) {
	name := textclean.Slug(result.Keyword) + ".json"
	if err := writeJSON(filepath.Join(dataDir, name), result); err != nil {
		return "", err
	}
	return name, nil
}

// WriteCombined writes every result of a run into a single timestamped file
// and returns the file name.
func WriteCombined(dataDir string, results []*Result, now time.Time) (string, error) {
	name := fmt.Sprintf("all_keywords_%s.json", now.Format("20060102_150405"))
	if err := writeJSON(filepath.Join(dataDir, name), results); err != nil {
		return "", err
	}
	return name, nil
}

// BuildSummary computes run totals and per-keyword averages.
func BuildSummary(results []*Result, now time.Time) *Summary {
	summary := &Summary{
		Timestamp:              now.Format(time.RFC3339),
		TotalKeywordsProcessed: len(results),
	}

	for _, result := range results {
		summary.TotalAutocompleteSuggestions += len(result.Autocomplete)
		summary.TotalPeopleAlsoAskQuestions += len(result.PeopleAlsoAsk)
		summary.TotalPeopleAlsoSearchFor += len(result.PeopleAlsoSearchFor)
		if len(result.PeopleAlsoAsk) == 0 {
			summary.KeywordsWithEmptyPAA++
		}
		if len(result.PeopleAlsoSearchFor) == 0 {
			summary.KeywordsWithEmptyPASF++
		}
	}

	if count := len(results); count > 0 {
		summary.AverageAutocompletePerKeyword = round2(float64(summary.TotalAutocompleteSuggestions) / float64(count))
		summary.AveragePAAPerKeyword = round2(float64(summary.TotalPeopleAlsoAskQuestions) / float64(count))
		summary.AveragePASFPerKeyword = round2(float64(summary.TotalPeopleAlsoSearchFor) / float64(count))
	}

	return summary
}

// WriteSummary writes the run summary to <dataDir>/summary_report.json.
func WriteSummary(dataDir string, results []*Result, now time.Time) error {
	return writeJSON(filepath.Join(dataDir, SummaryFileName), BuildSummary(results, now))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
