// Package ai asks a language model for a qualitative review of a submission.
package ai

import "context"

// SourceFile is one file of a reviewed code submission.
type SourceFile struct {
	Path    string
	Content string
}

// ReviewInput contains the artefacts a reviewer looks at.
type ReviewInput struct {
	TaskTitle    string
	TaskType     string
	Files        []SourceFile
	Answer       string
	JudgeStdout  string
	JudgeStderr  string
	Instructions string
}

// ReviewResult is the structured feedback returned by a reviewer. Score is in
// the range [0, 1].
type ReviewResult struct {
	Score    float64 `json:"score"`
	Verdict  string  `json:"verdict"`
	Feedback string  `json:"feedback"`
}

// Reviewer describes a model capable of reviewing submissions.
type Reviewer interface {
	Review(ctx context.Context, input ReviewInput) (ReviewResult, error)
}
