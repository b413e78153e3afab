// Package summary produces the post-meeting title and summary.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

// Summarizer turns a finished meeting's transcript into a short title
// and a prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, m *meeting.Meeting) (title, body string, err error)
}

// RenderTranscript formats the transcript the way the summarization
// prompt consumes it: one chronological line per utterance.
func RenderTranscript(m *meeting.Meeting) string {
	var b strings.Builder
	for _, e := range m.SortedTranscript() {
		name := e.SpeakerName
		if name == "" {
			name = e.SpeakerID
		}
		fmt.Fprintf(&b, "%s: %q\n", name, e.Text)
	}
	return b.String()
}

// SplitTitle separates the model output into a title line and the
// remaining body. Models tend to label the title despite instructions,
// so known prefixes are stripped.
func SplitTitle(output string) (title, body string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return "", ""
	}

	title = output
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		title = output[:idx]
		body = strings.TrimSpace(output[idx+1:])
	}

	title = strings.TrimSpace(title)
	for _, prefix := range []string{"Meeting Title:", "Title:"} {
		if strings.HasPrefix(title, prefix) {
			title = strings.TrimSpace(strings.TrimPrefix(title, prefix))
			break
		}
	}
	title = strings.Trim(title, `"*`)
	return title, body
}
