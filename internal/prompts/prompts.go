package prompts

import "strings"

// SampleDataLines is the number of data rows from the input CSV included in
// the generation prompt to ground the model in the actual schema.
const SampleDataLines = 5

// ============================================================================
// Code Generation Prompts
// ============================================================================

// TransformationSystemPrompt defines the contract for generated scripts.
// The script reads the input dataset from a fixed path and writes the result
// to a fixed path; the execution stage uploads/downloads those exact files.
const TransformationSystemPrompt = `You are a data transformation assistant. Generate a Python script that:
- Imports pandas and numpy
- Reads a CSV file from "data.csv" using pandas
- Applies the transformation described by the user
- Preserves existing columns unless the user explicitly asks to remove or replace them
- Saves the transformed data to "transformed.csv" using pandas

Output ONLY the Python script. No markdown, no explanations, no code fences.`

// BuildTransformationUserPrompt assembles the user prompt from a short
// sample of the resolved input CSV and the user's transformation request.
// Parameters:
//   - csvContent: full input CSV; only a leading sample is embedded.
//   - prompt: user's natural-language transformation request.
// Returns:
//   - string: augmented user prompt handed to the generation service.
func BuildTransformationUserPrompt(csvContent, prompt string) string {
	var b strings.Builder
	sample := CSVSample(csvContent, SampleDataLines)
	if sample != "" {
		b.WriteString("The input CSV (\"data.csv\") starts with:\n\n")
		b.WriteString(sample)
		b.WriteString("\n\n")
	}
	b.WriteString("Create a Python script that satisfies this transformation request:\n\n")
	b.WriteString(prompt)
	return b.String()
}

// CSVSample returns the header line plus at most n data lines of a CSV.
// Parameters:
//   - csvContent: raw CSV text.
//   - n: maximum number of data lines after the header.
// Returns:
//   - string: truncated sample, trailing newline removed.
func CSVSample(csvContent string, n int) string {
	lines := strings.Split(strings.TrimRight(csvContent, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	limit := n + 1 // header plus n data lines
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, "\n")
}
