package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior reviewer of detailed project reports (DPRs) for public infrastructure projects. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- score is an integer from 0 to 100 rating how complete the submission is.
- checks lists the structural checks you ran; status is one of pass, warning, fail.
- missing lists required information that is absent; importance is one of critical, medium, low.
- inconsistencies lists contradictions between sections; severity is one of high, medium, low.
- Mention budget, cost, funding, schedule, timeline, environmental or clearance topics by name in field, type and description so they can be categorized.
- If the document text is not provided, judge conservatively from the file names and types.

Schema (example with empty values):
{
  "score": 0,
  "checks": [
    {"name": "<string>", "status": "<pass|warning|fail>", "description": "<string>"}
  ],
  "missing": [
    {"field": "<string>", "importance": "<critical|medium|low>", "description": "<string>"}
  ],
  "inconsistencies": [
    {"type": "<string>", "severity": "<high|medium|low>", "description": "<string>", "location": "<string>"}
  ]
}`
}

// GetUserPrompt lists the submitted files for the model.
func GetUserPrompt(files []uploads.WorkUnit) string {
	var b strings.Builder
	b.WriteString("Review the following DPR submission and respond with the JSON per schema.\nFiles:\n")
	for i, f := range files {
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, f.Name, f.MediaType, humanize.IBytes(uint64(f.SizeBytes)))
	}
	return b.String()
}

// ParseFindings decodes a model reply. Enum values are lower-cased and code
// fences stripped; anything else malformed is rejected.
func ParseFindings(content string) (analysis.Findings, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var f analysis.Findings
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return analysis.Findings{}, fmt.Errorf("decode findings: %w", err)
	}
	for i := range f.Checks {
		f.Checks[i].Status = analysis.CheckStatus(strings.ToLower(string(f.Checks[i].Status)))
	}
	for i := range f.Missing {
		f.Missing[i].Importance = analysis.Importance(strings.ToLower(string(f.Missing[i].Importance)))
	}
	for i := range f.Inconsistencies {
		f.Inconsistencies[i].Severity = analysis.Severity(strings.ToLower(string(f.Inconsistencies[i].Severity)))
	}
	if err := f.Validate(); err != nil {
		return analysis.Findings{}, err
	}
	return f, nil
}
