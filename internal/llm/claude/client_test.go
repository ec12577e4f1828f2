package claude

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestTextFromResponse_SingleBlock(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"urgencyLevel":1}`},
		},
	}

	got := textFromResponse(msg)
	if got != `{"urgencyLevel":1}` {
		t.Errorf("text = %q, want %q", got, `{"urgencyLevel":1}`)
	}
}

func TestTextFromResponse_ConcatenatesTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "first "},
			{Type: "text", Text: "second"},
		},
	}

	got := textFromResponse(msg)
	if got != "first second" {
		t.Errorf("text = %q, want %q", got, "first second")
	}
}

func TestTextFromResponse_SkipsNonText(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "thinking", Text: "reasoning"},
			{Type: "text", Text: "answer"},
		},
	}

	got := textFromResponse(msg)
	if got != "answer" {
		t.Errorf("text = %q, want %q", got, "answer")
	}
}

func TestTextFromResponse_Empty(t *testing.T) {
	t.Parallel()

	got := textFromResponse(&anthropic.Message{})
	if got != "" {
		t.Errorf("text = %q, want empty", got)
	}
}
