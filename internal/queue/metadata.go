package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TrackerReleaseNames decodes the per-tracker release name mapping.
func (f *FileEntry) TrackerReleaseNames() (map[string]string, error) {
	if strings.TrimSpace(f.ReleaseNamesJSON) == "" {
		return map[string]string{}, nil
	}
	names := make(map[string]string)
	if err := json.Unmarshal([]byte(f.ReleaseNamesJSON), &names); err != nil {
		return nil, fmt.Errorf("decode release names: %w", err)
	}
	return names, nil
}

// SetTrackerReleaseNames stores the per-tracker release name mapping.
func (f *FileEntry) SetTrackerReleaseNames(names map[string]string) error {
	if len(names) == 0 {
		f.ReleaseNamesJSON = ""
		return nil
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode release names: %w", err)
	}
	f.ReleaseNamesJSON = string(data)
	return nil
}

// DuplicateCheckResults decodes the cached per-tracker duplicate check outcomes.
func (f *FileEntry) DuplicateCheckResults() (map[string]bool, error) {
	if strings.TrimSpace(f.DuplicateChecksJSON) == "" {
		return map[string]bool{}, nil
	}
	results := make(map[string]bool)
	if err := json.Unmarshal([]byte(f.DuplicateChecksJSON), &results); err != nil {
		return nil, fmt.Errorf("decode duplicate checks: %w", err)
	}
	return results, nil
}

// SetDuplicateCheckResult caches one tracker's duplicate check outcome.
func (f *FileEntry) SetDuplicateCheckResult(tracker string, duplicate bool) error {
	results, err := f.DuplicateCheckResults()
	if err != nil {
		return err
	}
	results[tracker] = duplicate
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode duplicate checks: %w", err)
	}
	f.DuplicateChecksJSON = string(data)
	return nil
}

// FileIDs decodes the batch member file id list in submission order.
func (b *BatchJob) FileIDs() ([]int64, error) {
	if strings.TrimSpace(b.FileIDsJSON) == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(b.FileIDsJSON), &ids); err != nil {
		return nil, fmt.Errorf("decode batch file ids: %w", err)
	}
	return ids, nil
}

// Results decodes the batch results in completion order.
func (b *BatchJob) Results() ([]BatchResult, error) {
	if strings.TrimSpace(b.ResultsJSON) == "" {
		return nil, nil
	}
	var results []BatchResult
	if err := json.Unmarshal([]byte(b.ResultsJSON), &results); err != nil {
		return nil, fmt.Errorf("decode batch results: %w", err)
	}
	return results, nil
}

// terminalStatus derives the batch status once every member is terminal.
func (b *BatchJob) terminalStatus() BatchStatus {
	switch {
	case b.FailedCount == 0:
		return BatchCompleted
	case b.SuccessCount == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}

// summarizeErrors builds the aggregated failure text from recorded results.
func summarizeErrors(results []BatchResult) string {
	var parts []string
	for _, result := range results {
		if result.Outcome.Succeeded() {
			continue
		}
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = string(result.Outcome)
		}
		parts = append(parts, fmt.Sprintf("file %d: %s", result.FileID, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
