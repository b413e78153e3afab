package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

const summaryPrompt = "You are given the transcript of a meeting, one line per utterance. " +
	"Write a concise title for the meeting on the first line, with no label or prefix. " +
	"Then write a summary of the discussion: key points, decisions made and action items."

// ChatSummarizer calls an OpenAI-compatible chat completions endpoint.
type ChatSummarizer struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      zerolog.Logger
}

// ChatOptions configures a ChatSummarizer.
type ChatOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatSummarizer creates a summarizer against the configured
// chat-completions endpoint.
func NewChatSummarizer(opts ChatOptions, logger zerolog.Logger) *ChatSummarizer {
	return &ChatSummarizer{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client:      &http.Client{Timeout: opts.Timeout},
		logger:      logger.With().Str("component", "summarizer").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize renders the transcript, asks the model for a title and
// summary, and splits them apart.
func (s *ChatSummarizer) Summarize(ctx context.Context, m *meeting.Meeting) (string, string, error) {
	transcript := RenderTranscript(m)
	if transcript == "" {
		return "", "", fmt.Errorf("meeting %s has an empty transcript", m.ID)
	}

	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: transcript},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode summary request: %w", err)
	}

	endpoint := s.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", "", fmt.Errorf("failed to build summary request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("summary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("summary endpoint returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", "", fmt.Errorf("failed to decode summary response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", "", fmt.Errorf("summary endpoint returned no choices")
	}

	title, body := SplitTitle(cr.Choices[0].Message.Content)
	if title == "" {
		return "", "", fmt.Errorf("summary endpoint returned empty content")
	}

	s.logger.Info().
		Str("meeting_id", m.ID).
		Dur("elapsed", time.Since(start)).
		Int("transcript_chars", len(transcript)).
		Msg("meeting summarized")

	return title, body, nil
}
