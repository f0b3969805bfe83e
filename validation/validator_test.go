package validation

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	v := New()

	t.Run("collapses whitespace", func(t *testing.T) {
		got, err := v.Sanitize("  Hva   sier\tNS-EN 1991-1-4\n om vindlast?  ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "Hva sier NS-EN 1991-1-4 om vindlast?"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := v.Sanitize("  Hva   er   kravet? ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := v.Sanitize(first)
		if err != nil {
			t.Fatalf("re-validation failed: %v", err)
		}
		if first != second {
			t.Errorf("not idempotent: %q vs %q", first, second)
		}
	})

	t.Run("rejects short and long", func(t *testing.T) {
		if _, err := v.Sanitize("hi"); !IsInvalidQuestion(err) {
			t.Errorf("expected rejection for short input, got %v", err)
		}
		if _, err := v.Sanitize(""); !IsInvalidQuestion(err) {
			t.Errorf("expected rejection for empty input, got %v", err)
		}
		if _, err := v.Sanitize(strings.Repeat("a", 1001)); !IsInvalidQuestion(err) {
			t.Errorf("expected rejection for long input, got %v", err)
		}
	})

	t.Run("rejects dangerous patterns", func(t *testing.T) {
		for _, bad := range []string{
			"<script>alert(1)</script>",
			"klikk javascript:void(0) her",
			"hva med onload=stjel()",
			"eval (document.cookie)",
			"exec(rm -rf)",
			"hent __import__ modulen",
			"les ../etc/passwd filen",
			"a < b eller b > a",
			"kontrolltegn \x07 i tekst",
		} {
			if _, err := v.Sanitize(bad); !IsInvalidQuestion(err) {
				t.Errorf("Sanitize(%q) = nil error, want rejection", bad)
			}
		}
	})

	t.Run("accepts norwegian text", func(t *testing.T) {
		got, err := v.Sanitize("Hva sier personalhåndboken om sykefravær og ferie?")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == "" {
			t.Error("expected sanitised text")
		}
	})
}

func TestValidStandardNumbers(t *testing.T) {
	accepted := []string{
		"NS-EN 13141-8:2006",
		"EN 1991-1-4",
		"ISO/IEC 27001:2013",
		"NS 11001-1",
		"EN ISO 1461",
	}
	for _, s := range accepted {
		got := ValidStandardNumbers([]string{s})
		if len(got) != 1 || got[0] != strings.ToUpper(s) {
			t.Errorf("ValidStandardNumbers(%q) = %v, want accepted", s, got)
		}
	}

	rejected := []string{"banana", "<script>", "NS", "12345", ""}
	for _, s := range rejected {
		if got := ValidStandardNumbers([]string{s}); len(got) != 0 {
			t.Errorf("ValidStandardNumbers(%q) = %v, want rejected", s, got)
		}
	}

	t.Run("dedup preserves order", func(t *testing.T) {
		got := ValidStandardNumbers([]string{"ns 11001-1", "EN 1991-1-4", "NS 11001-1"})
		if len(got) != 2 || got[0] != "NS 11001-1" || got[1] != "EN 1991-1-4" {
			t.Errorf("got %v", got)
		}
	})
}

func TestExtractStandards(t *testing.T) {
	text := "Sammenlign NS-EN 13141-8:2006 med standarden EN 1991-1-4. NS-EN 13141-8:2006 er nyest."
	got := ExtractStandards(text)
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 unique standards", got)
	}
	if got[0] != "NS-EN 13141-8:2006" || got[1] != "EN 1991-1-4" {
		t.Errorf("got %v", got)
	}

	if got := ExtractStandards("helt vanlig tekst uten referanser"); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}

	// Lower-case prose around a reference must not join the match.
	if got := ExtractStandards("Hva sier NS 3457 om bygningsdeler?"); len(got) != 1 || got[0] != "NS 3457" {
		t.Errorf("got %v, want [NS 3457]", got)
	}
}
