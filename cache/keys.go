package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyPayload is the canonical form hashed into a cache key. Maps marshal
// with sorted keys, so equal payloads always produce equal JSON.
type keyPayload struct {
	Type          string            `json:"type"`
	Content       string            `json:"content"`
	Kwargs        map[string]string `json:"kwargs,omitempty"`
	MemoryHash    string            `json:"memory_hash,omitempty"`
	MemoryContext bool              `json:"memory_context,omitempty"`
}

// Key derives the cache key for a prompt call.
//
// When kwargs carries a non-trivial conversation_memory (neither empty nor
// the "0" sentinel), a short hash of the memory joins the payload so two
// sessions asking the same question with different histories never share
// an entry. The answer namespace additionally flags memory_context, which
// keeps memory-grounded answers apart from memory-free ones.
func Key(namespace, content string, kwargs map[string]string) string {
	payload := keyPayload{
		Type:    namespace,
		Content: content,
	}
	memory := kwargs["conversation_memory"]
	if len(kwargs) > 0 {
		rest := make(map[string]string, len(kwargs))
		for k, v := range kwargs {
			if k == "conversation_memory" {
				continue
			}
			rest[k] = v
		}
		if len(rest) > 0 {
			payload.Kwargs = rest
		}
	}
	if memory != "" && memory != "0" {
		payload.MemoryHash = shortHash(memory)
		if namespace == "answer" {
			payload.MemoryContext = true
		}
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// EmbeddingKey namespaces embedding-vector entries by provider so external
// and internal fallback vectors never mix.
func EmbeddingKey(provider, text string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
