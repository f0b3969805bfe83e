package prompts

import (
	"strings"
	"testing"
)

func TestNewStoreLoadsAllTemplates(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range templateNames {
		if _, ok := s.templates[name]; !ok {
			t.Errorf("template %q not loaded", name)
		}
	}
}

func TestRender(t *testing.T) {
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	t.Run("substitutes variables", func(t *testing.T) {
		out, err := s.Render(NamespaceAnswer, Vars{
			LastUtterance:      "Hva sier NS 3457 om bygningsdeler?",
			Chunks:             "Dokument 1 (score: 1.00):",
			ConversationMemory: "0",
		})
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(out, "Hva sier NS 3457 om bygningsdeler?") {
			t.Error("question not substituted")
		}
		if !strings.Contains(out, "Dokument 1 (score: 1.00):") {
			t.Error("chunks not substituted")
		}
		if strings.Contains(out, "{last_utterance}") || strings.Contains(out, "{chunks}") {
			t.Error("placeholders left in output")
		}
	})

	t.Run("unknown namespace", func(t *testing.T) {
		if _, err := s.Render("nope", Vars{}); err == nil {
			t.Error("expected error for unknown template")
		}
	})
}

func TestConfigFor(t *testing.T) {
	if got := ConfigFor(NamespaceAnalysis); got.MaxTokens != 20 {
		t.Errorf("analysis max tokens = %d", got.MaxTokens)
	}
	if got := ConfigFor("unknown"); got.MaxTokens != Configs[NamespaceAnswer].MaxTokens {
		t.Error("unknown namespace should fall back to answer config")
	}
}
