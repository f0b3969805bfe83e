package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
	c.Set("k", "v", 0)
	got, ok := c.Get("k")
	if !ok || got.(string) != "v" {
		t.Errorf("got %v, %v", got, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	stats := c.Stats()
	if stats.Expired != 1 {
		t.Errorf("expired = %d, want 1", stats.Expired)
	}
	if stats.Entries != 0 {
		t.Errorf("expired entry not deleted, entries = %d", stats.Entries)
	}
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	c := New(time.Minute, WithMaxEntries(3))
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
		time.Sleep(2 * time.Millisecond)
	}
	c.Set("k3", 3, 0)

	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %s should survive", k)
		}
	}
}

func TestKeyMemoryIsolation(t *testing.T) {
	question := "Hva sier NS-EN 1991-1-4 om vindlast?"

	t.Run("same inputs share a key", func(t *testing.T) {
		a := Key("answer", question, map[string]string{"conversation_memory": "USER: hei\nSYSTEM: hei"})
		b := Key("answer", question, map[string]string{"conversation_memory": "USER: hei\nSYSTEM: hei"})
		if a != b {
			t.Error("identical inputs must produce the same key")
		}
	})

	t.Run("different memory never collides", func(t *testing.T) {
		a := Key("answer", question, map[string]string{"conversation_memory": "USER: a\nSYSTEM: b"})
		b := Key("answer", question, map[string]string{"conversation_memory": "USER: x\nSYSTEM: y"})
		if a == b {
			t.Error("different conversation memory must produce different keys")
		}
	})

	t.Run("sentinel memory treated as none", func(t *testing.T) {
		a := Key("analysis", question, map[string]string{"conversation_memory": "0"})
		b := Key("analysis", question, map[string]string{"conversation_memory": ""})
		if a != b {
			t.Error("\"0\" and empty memory should key identically")
		}
	})

	t.Run("namespaces never collide", func(t *testing.T) {
		if Key("analysis", question, nil) == Key("answer", question, nil) {
			t.Error("namespace must participate in the key")
		}
	})
}

func TestEmbeddingKeyProviderSeparation(t *testing.T) {
	if EmbeddingKey("external", "ping") == EmbeddingKey("internal", "ping") {
		t.Error("providers must not share embedding cache entries")
	}
}
