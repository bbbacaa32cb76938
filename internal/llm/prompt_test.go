package llm

import (
	"slices"
	"testing"

	"github.com/i474232898/weather-ai/internal/weather"
)

var builder = PromptBuilder{
	System:       "You are a weather presenter.",
	User:         "Describe this:",
	AssistantCue: "Based on these data, describe the weather briefly:",
}

func TestPromptBuilder_Completion(t *testing.T) {
	b := builder
	b.Mode = ModeCompletion

	p := b.Build("Weather report for Cracow:")

	want := "System: You are a weather presenter.\n\n" +
		"User: Describe this:\nWeather report for Cracow:\n\n" +
		"Assistant: Based on these data, describe the weather briefly:\n"
	if p.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", p.Text, want)
	}
	if p.Empty || p.Mode != ModeCompletion || p.Messages != nil {
		t.Errorf("unexpected prompt %+v", p)
	}
	if !slices.Equal(p.Stop, []string{"User:", "System:"}) {
		t.Errorf("Stop = %v", p.Stop)
	}
}

func TestPromptBuilder_Chat(t *testing.T) {
	b := builder
	b.Mode = ModeChat

	p := b.Build("Weather report for Cracow:")

	want := []Message{
		{Role: "system", Content: "You are a weather presenter."},
		{Role: "user", Content: "Describe this:\nWeather report for Cracow:"},
	}
	if !slices.Equal(p.Messages, want) {
		t.Errorf("Messages = %+v, want %+v", p.Messages, want)
	}
	if p.Text != "" {
		t.Errorf("chat prompt should not carry Text, got %q", p.Text)
	}
	if !slices.Equal(p.Stop, StopMarkers) {
		t.Errorf("Stop = %v", p.Stop)
	}
}

func TestPromptBuilder_NothingToAnalyze(t *testing.T) {
	for _, report := range []string{"", "  \n", weather.NoDataText, weather.InvalidText} {
		for _, mode := range []Mode{ModeCompletion, ModeChat} {
			b := builder
			b.Mode = mode
			p := b.Build(report)
			if !p.Empty {
				t.Errorf("Build(%q) in %s mode should be empty", report, mode)
			}
			if p.Text != "" || p.Messages != nil {
				t.Errorf("empty prompt should carry no payload: %+v", p)
			}
		}
	}
}

func TestPromptBuilder_StopIsCopied(t *testing.T) {
	p := builder.Build("report")
	p.Stop[0] = "changed"
	if StopMarkers[0] != "User:" {
		t.Error("Build must not share the StopMarkers slice")
	}
}
