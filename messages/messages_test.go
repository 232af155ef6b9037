package messages

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

type rendered struct {
	Content string `json:"content"`
	Embeds  []struct {
		Description string `json:"description"`
		Footer      struct {
			Text string `json:"text"`
		} `json:"footer"`
	} `json:"embeds"`
	Components []struct {
		Type       int `json:"type"`
		Components []struct {
			Label    string `json:"label"`
			CustomID string `json:"custom_id"`
		} `json:"components"`
	} `json:"components"`
}

func controls(playing bool) map[string]any {
	return map[string]any{
		"playing":            playing,
		"play_component_id":  "h:controls:play",
		"pause_component_id": "h:controls:pause",
		"flush_component_id": "h:controls:flush",
	}
}

func render(t *testing.T, m *MessageProvider, name string, data any) rendered {
	t.Helper()

	out, err := m.ExecuteMessage(name, data)
	if err != nil {
		t.Fatalf("ExecuteMessage(%s): %v", name, err)
	}

	var r rendered
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("unmarshaling %s output: %v\n%s", name, err, out)
	}
	return r
}

func TestTranscript(t *testing.T) {
	m, err := NewMessageProvider()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		text       string
		candidates []string
		playing    bool
		content    string
		embeds     int
		buttons    []string
	}{
		{
			name:       "single candidate",
			text:       "HELLO WORLD",
			candidates: []string{"HELLO WORLD"},
			playing:    true,
			content:    "> HELLO WORLD",
			embeds:     0,
			buttons:    []string{"Pause", "Flush"},
		},
		{
			name:       "alternatives",
			text:       "HELLO WORLD",
			candidates: []string{"HELLO WORLD", "hello world", "yellow world"},
			playing:    false,
			content:    "> HELLO WORLD",
			embeds:     1,
			buttons:    []string{"Listen", "Flush"},
		},
		{
			name:       "empty",
			text:       "",
			candidates: []string{},
			playing:    true,
			content:    "*(nothing recognized)*",
			embeds:     0,
			buttons:    []string{"Pause", "Flush"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := render(t, m, "transcript", map[string]any{
				"timestamp": "2024-01-01T00:00:00Z",
				"transcript": map[string]any{
					"text":            tt.text,
					"candidates":      tt.candidates,
					"tag":             "speech_api",
					"sequence":        3,
					"audio_duration":  1.5,
					"processing_time": 0.25,
					"controls":        controls(tt.playing),
				},
			})

			if r.Content != tt.content {
				t.Errorf("content = %q, want %q", r.Content, tt.content)
			}
			if len(r.Embeds) != tt.embeds {
				t.Fatalf("got %d embeds, want %d", len(r.Embeds), tt.embeds)
			}
			if tt.embeds > 0 {
				if !strings.Contains(r.Embeds[0].Description, "- yellow world") {
					t.Errorf("description = %q", r.Embeds[0].Description)
				}
				if !strings.HasPrefix(r.Embeds[0].Footer.Text, "#3 ") {
					t.Errorf("footer = %q", r.Embeds[0].Footer.Text)
				}
			}

			if len(r.Components) != 1 || r.Components[0].Type != 1 {
				t.Fatalf("expected one action row, got %+v", r.Components)
			}
			var labels []string
			for _, c := range r.Components[0].Components {
				labels = append(labels, c.Label)
			}
			if strings.Join(labels, ",") != strings.Join(tt.buttons, ",") {
				t.Errorf("buttons = %v, want %v", labels, tt.buttons)
			}
		})
	}
}

func TestControlResponse(t *testing.T) {
	m, err := NewMessageProvider()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		action  string
		pending int
		playing bool
		content string
	}{
		{"play", 0, true, "Listening."},
		{"flush", 0, true, "Flushed. Nothing was queued."},
		{"flush", 1, true, "Flushed. 1 queued utterance discarded."},
		{"pause", 2, false, "Paused. The current utterance is dropped and nothing queued will be sent. 2 queued utterances discarded."},
	}

	for _, tt := range tests {
		r := render(t, m, "control_response", map[string]any{
			"control_response": map[string]any{
				"action":   tt.action,
				"pending":  tt.pending,
				"controls": controls(tt.playing),
			},
		})
		if r.Content != tt.content {
			t.Errorf("%s: content = %q, want %q", tt.action, r.Content, tt.content)
		}
	}
}

func TestRecentTranscripts(t *testing.T) {
	m, err := NewMessageProvider()
	if err != nil {
		t.Fatal(err)
	}

	r := render(t, m, "recent_transcripts", map[string]any{
		"timestamp":          "2024-01-01T00:00:00Z",
		"recent_transcripts": map[string]any{"transcripts": []any{}},
	})
	if r.Content != "No transcripts saved yet." || len(r.Embeds) != 0 {
		t.Errorf("empty: %+v", r)
	}

	r = render(t, m, "recent_transcripts", map[string]any{
		"timestamp": "2024-01-01T00:00:00Z",
		"recent_transcripts": map[string]any{"transcripts": []any{
			map[string]any{"text": strings.Repeat("a", 300), "sequence": 4, "tag": "speech_api", "created_at": 1704110400},
		}},
	})
	if len(r.Embeds) != 1 {
		t.Fatalf("got %d embeds", len(r.Embeds))
	}
	want := "`#4` <t:1704110400:R> " + strings.Repeat("a", 200) + "…"
	if r.Embeds[0].Description != want {
		t.Errorf("description = %q", r.Embeds[0].Description)
	}
}

func TestErrors(t *testing.T) {
	m, err := NewMessageProvider()
	if err != nil {
		t.Fatal(err)
	}

	r := render(t, m, "command_error", map[string]any{
		"command_error": map[string]any{"message": "Not here."},
	})
	if r.Content != ":warning: Not here." {
		t.Errorf("content = %q", r.Content)
	}

	r = render(t, m, "interaction_error", map[string]any{
		"interaction_error": map[string]any{"message": "Nope."},
	})
	if r.Content != ":warning: Nope." {
		t.Errorf("content = %q", r.Content)
	}

	if _, err := m.ExecuteMessage("does_not_exist", map[string]any{}); err == nil {
		t.Error("expected error for unknown message")
	}
}

func TestConcurrentExecute(t *testing.T) {
	m, err := NewMessageProvider()
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := "error"
			if i%2 == 0 {
				msg = "other"
			}
			out, err := m.ExecuteMessage("command_error", map[string]any{
				"command_error": map[string]any{"message": msg},
			})
			if err != nil {
				t.Error(err)
				return
			}
			if !strings.Contains(out, msg) {
				t.Errorf("output %s does not contain %q", out, msg)
			}
		}()
	}
	wg.Wait()
}
