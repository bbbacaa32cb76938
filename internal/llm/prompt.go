package llm

import (
	"strings"

	"github.com/i474232898/weather-ai/internal/common"
	"github.com/i474232898/weather-ai/internal/weather"
)

// Mode selects the prompt shape sent to the model.
type Mode string

const (
	ModeCompletion Mode = "completion"
	ModeChat       Mode = "chat"
)

// Message is one role-tagged chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StopMarkers are the role prefixes used in completion prompts.
var StopMarkers = []string{"User:", "System:"}

// Prompt is ready to hand to a Runner. Empty prompts carry no text and must
// not reach a backend.
type Prompt struct {
	Mode     Mode
	Text     string
	Messages []Message
	Stop     []string
	Empty    bool
}

// PromptBuilder combines the fixed instructions with a report.
type PromptBuilder struct {
	System       string
	User         string
	AssistantCue string
	Mode         Mode
}

// Build returns the prompt for report, or an Empty prompt when the report is
// blank or one of the sentinel texts.
func (b PromptBuilder) Build(report string) Prompt {
	if strings.TrimSpace(report) == "" || common.HasAny(report, weather.NoDataText, weather.InvalidText) {
		return Prompt{Mode: b.Mode, Empty: true}
	}

	stop := append([]string(nil), StopMarkers...)

	if b.Mode == ModeChat {
		return Prompt{
			Mode: ModeChat,
			Messages: []Message{
				{Role: "system", Content: b.System},
				{Role: "user", Content: b.User + "\n" + report},
			},
			Stop: stop,
		}
	}

	var sb strings.Builder
	sb.WriteString("System: ")
	sb.WriteString(b.System)
	sb.WriteString("\n\nUser: ")
	sb.WriteString(b.User)
	sb.WriteString("\n")
	sb.WriteString(report)
	sb.WriteString("\n\nAssistant: ")
	sb.WriteString(b.AssistantCue)
	sb.WriteString("\n")

	return Prompt{Mode: ModeCompletion, Text: sb.String(), Stop: stop}
}
