package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenAIReviewerParsesVerdict(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompt = body.Messages[1].Content

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":1.4,\"verdict\":\"pass\",\"feedback\":\"nice\"}"}}]}`))
	}))
	defer server.Close()

	reviewer, err := NewOpenAIReviewer(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	result, err := reviewer.Review(context.Background(), ReviewInput{
		TaskTitle: "Hello",
		TaskType:  "CODE",
		Files:     []SourceFile{{Path: "main.py", Content: "print('hi')"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Score)
	require.Equal(t, "pass", result.Verdict)
	require.Contains(t, prompt, "### main.py")
}

func TestNewOpenAIReviewerRequiresKey(t *testing.T) {
	_, err := NewOpenAIReviewer(OpenAIConfig{})
	require.Error(t, err)
}

func TestParseReviewResponseRejectsGarbage(t *testing.T) {
	_, err := parseReviewResponse("not json")
	require.Error(t, err)
}

func TestRenderPromptSections(t *testing.T) {
	long := strings.Repeat("x", maxFileChars+10)
	prompt, err := renderPrompt(ReviewInput{
		TaskTitle:   "Capitals",
		TaskType:    "QUIZ",
		Files:       []SourceFile{{Path: "big.txt", Content: long}},
		JudgeStderr: "boom",
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(prompt, "# Task\nCapitals\n\n## Type\nQUIZ"))
	require.Contains(t, prompt, "### big.txt\n"+long[:maxFileChars]+truncated)
	require.Contains(t, prompt, "## Program Errors\nboom")
	require.NotContains(t, prompt, "## Answer")
	require.NotContains(t, prompt, "## Reviewer Notes")
	require.True(t, strings.HasSuffix(prompt, "Return JSON."))
}

func TestParseReviewResponseClampsScore(t *testing.T) {
	result, err := parseReviewResponse(` {"score":-2,"verdict":"wrong"} `)
	require.NoError(t, err)
	require.Zero(t, result.Score)
}
