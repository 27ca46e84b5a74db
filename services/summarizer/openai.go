package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/review"
)

const defaultSystemPrompt = "You combine several anonymous peer reviews of one student submission into a single, " +
	"constructive narrative addressed to the student. Never mention reviewer identities."

// OpenAI implements review.Summarizer against an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ review.Summarizer = (*OpenAI)(nil)

func NewOpenAI(conf core.SummarizerConfig) *OpenAI {
	return &OpenAI{
		endpoint:     conf.Endpoint,
		model:        conf.Model,
		apiKey:       conf.APIKey,
		systemPrompt: conf.SystemPrompt,
		httpClient:   &http.Client{Timeout: conf.Timeout},
	}
}

type (
	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}

	chatResponse struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
)

func (c *OpenAI) Summarize(ctx context.Context, req review.SynthesisRequest) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", errors.New("summarizer misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshalling chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "sending chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Errorf("summarizer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chatResp chatResponse
	if err = json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", errors.Wrap(err, "decoding chat response")
	}
	if len(chatResp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// BuildPrompt renders the request as the user message: instructions, prior synthesis, then one
// block per review in completion order.
func BuildPrompt(req review.SynthesisRequest) string {
	var b strings.Builder
	b.WriteString("Instructions:\n")
	for _, instr := range req.Instructions {
		fmt.Fprintf(&b, "- %s\n", instr)
	}
	if prior := strings.TrimSpace(req.PriorSynthesis); prior != "" {
		fmt.Fprintf(&b, "\nPrevious synthesis (update it with the new reviews):\n%s\n", prior)
	}
	for i, entry := range req.Entries {
		fmt.Fprintf(&b, "\nReview %d - score %d/%d\n", i+1, entry.Score, entry.MaxScore)
		fmt.Fprintf(&b, "Feedback: %s\n", PlainText(entry.Feedback))
		for _, fb := range entry.CriterionFeedback {
			fmt.Fprintf(&b, "- %s\n", PlainText(fb))
		}
	}
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
