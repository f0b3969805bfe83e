package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversations.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "bruker1", "Hva sier NS 3457 om bygningsdeler?", "NS 3457 beskriver...")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conv, err := s.Get(ctx, "bruker1", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.Title != "NS 3457" {
		t.Errorf("title = %q", conv.Title)
	}
	if conv.MessageCount != 1 {
		t.Errorf("message count = %d", conv.MessageCount)
	}
}

func TestUserScoping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "bruker1", "spørsmål her", "svar her")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Get(ctx, "bruker2", id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("cross-user Get = %v, want ErrNoRows", err)
	}
	if err := s.AppendMessage(ctx, "bruker2", id, "snik", "svar"); err == nil {
		t.Error("cross-user append should fail")
	}
	if err := s.Delete(ctx, "bruker2", id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("cross-user Delete = %v, want ErrNoRows", err)
	}

	convs, err := s.List(ctx, "bruker2", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("bruker2 sees %d conversations", len(convs))
	}
}

func TestAppendAndMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "u", "første spørsmål", "første svar")
	if err := s.AppendMessage(ctx, "u", id, "andre spørsmål", "andre svar"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.Messages(ctx, "u", id)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Question != "første spørsmål" || msgs[1].Question != "andre spørsmål" {
		t.Errorf("wrong order: %q, %q", msgs[0].Question, msgs[1].Question)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "u", "spørsmål her", "svar")
	if err := s.Delete(ctx, "u", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "u", id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get after delete = %v", err)
	}
	if msgs, _ := s.Messages(ctx, "u", id); len(msgs) != 0 {
		t.Error("messages survived deletion")
	}
}

func TestCleanupOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "u", "gammelt spørsmål", "svar")
	// Age the conversation directly.
	if _, err := s.db.Exec(`UPDATE conversations SET last_message_at = ?`, time.Now().UTC().Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("aging: %v", err)
	}

	n, err := s.CleanupOlderThan(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d", n)
	}
	if _, err := s.Get(ctx, "u", id); !errors.Is(err, sql.ErrNoRows) {
		t.Error("old conversation survived cleanup")
	}
}

func TestDeterministicTitle(t *testing.T) {
	cases := []struct {
		name     string
		question string
		answer   string
		want     string
	}{
		{"single standard", "Hva sier NS 3457 om bygningsdeler?", "", "NS 3457"},
		{"two standards", "Sammenlign NS 3457 med NS 3451?", "", "NS 3457 og NS 3451"},
		{"standard from answer", "Hvilken standard gjelder her?", "Det dekkes av NS-EN 1991-1-4:2005.", "NS-EN 1991-1-4:2005"},
		{"topic bucket", "Hvordan beregner jeg vindlast på flate tak?", "", "Vindlast"},
		{"content words", "Hvordan dimensjonere takstoler riktig her", "", "dimensjonere takstoler riktig"},
		{"empty", "", "", "Ny chat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeterministicTitle(tc.question, tc.answer); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("caps length", func(t *testing.T) {
		got := DeterministicTitle("ordentlig kjempelangtordsomaldritarslutt enda ettlangtordherogsåja visst", "")
		if len([]rune(got)) > 30 {
			t.Errorf("title too long: %q", got)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected ellipsis: %q", got)
		}
	})
}
