package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

const (
	maxFileChars = 8000
	truncated    = "\n... (truncated)"
)

const systemPrompt = "You review student lab submissions. Respond with a JSON object containing score (0-1), " +
	"verdict and feedback. Focus on correctness and on concrete suggestions the student can act on."

var userPrompt = template.Must(template.New("review").Funcs(template.FuncMap{
	"clip": clip,
}).Parse(`# Task
{{ .TaskTitle }}

## Type
{{ .TaskType }}
{{- if .Files }}

## Files
{{ range .Files }}
### {{ .Path }}
{{ clip .Content }}
{{ end }}
{{- end }}
{{- with .Answer }}

## Answer
{{ . }}
{{- end }}
{{- if or .JudgeStdout .JudgeStderr }}

## Program Output
{{ .JudgeStdout }}

## Program Errors
{{ .JudgeStderr }}
{{- end }}
{{- with .Instructions }}

## Reviewer Notes
{{ . }}
{{- end }}
Return JSON.`))

func clip(content string) string {
	if len(content) <= maxFileChars {
		return content
	}
	return content[:maxFileChars] + truncated
}

func renderPrompt(input ReviewInput) (string, error) {
	var b strings.Builder
	if err := userPrompt.Execute(&b, input); err != nil {
		return "", fmt.Errorf("render review prompt: %w", err)
	}
	return b.String(), nil
}

// parseReviewResponse decodes the model's JSON verdict and clamps the score
// into [0, 1].
func parseReviewResponse(content string) (ReviewResult, error) {
	var result ReviewResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return ReviewResult{}, fmt.Errorf("parse review json: %w", err)
	}
	result.Score = min(max(result.Score, 0), 1)
	return result, nil
}
