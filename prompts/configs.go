package prompts

import "time"

// Namespace names one prompt operation. Each namespace has its own
// template, generation parameters, and cache TTL.
const (
	NamespaceAnalysis          = "analysis"
	NamespaceExtractStandard   = "extractStandard"
	NamespaceExtractFromMemory = "extractFromMemory"
	NamespaceOptimizeSemantic  = "optimizeSemantic"
	NamespaceOptimizeTextual   = "optimizeTextual"
	NamespaceAnswer            = "answer"

	// NamespaceTitle has no template file; the conversation store builds
	// its prompt inline.
	NamespaceTitle = "title"
)

// Config holds the per-namespace generation parameters and the TTL used by
// the prompt-response cache.
type Config struct {
	MaxTokens     int
	Temperature   float32
	TTL           time.Duration
	SystemMessage string
}

// Configs is the namespace parameter table. Routing and extraction run
// near-deterministic; the answer namespace gets room and some freedom.
var Configs = map[string]Config{
	NamespaceAnalysis: {
		MaxTokens:     20,
		Temperature:   0.1,
		TTL:           time.Hour,
		SystemMessage: "You are a routing system that analyzes questions and returns exactly one of: 'including', 'without', 'personal', or 'memory'.",
	},
	NamespaceExtractStandard: {
		MaxTokens:     100,
		Temperature:   0.0,
		TTL:           30 * time.Minute,
		SystemMessage: "You extract standard numbers from questions. Return only the standard numbers, comma separated.",
	},
	NamespaceExtractFromMemory: {
		MaxTokens:     100,
		Temperature:   0.0,
		TTL:           15 * time.Minute,
		SystemMessage: "You extract standard numbers from memory context. Return only the standard numbers, comma separated.",
	},
	NamespaceOptimizeSemantic: {
		MaxTokens:     200,
		Temperature:   0.3,
		TTL:           30 * time.Minute,
		SystemMessage: "You are a helpful assistant that optimizes questions for semantic search.",
	},
	NamespaceOptimizeTextual: {
		MaxTokens:     150,
		Temperature:   0.2,
		TTL:           30 * time.Minute,
		SystemMessage: "You optimize questions for textual search by extracting key terms.",
	},
	NamespaceAnswer: {
		MaxTokens:     1500,
		Temperature:   0.4,
		TTL:           15 * time.Minute,
		SystemMessage: "You are a knowledgeable assistant that answers in Norwegian, grounded in the provided document excerpts.",
	},
	NamespaceTitle: {
		MaxTokens:     30,
		Temperature:   0.5,
		TTL:           time.Hour,
		SystemMessage: "You create a short Norwegian conversation title, at most five words. Return only the title.",
	},
}

// ConfigFor returns the namespace config, falling back to the answer
// parameters for unknown namespaces.
func ConfigFor(namespace string) Config {
	if c, ok := Configs[namespace]; ok {
		return c
	}
	return Configs[NamespaceAnswer]
}
