// Package querybuilder composes the Elasticsearch query objects for the
// four retrieval routes. Builders are pure; the only variation is whether
// an embedding vector is available to wrap the query in a script_score.
package querybuilder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
)

const (
	filterSize   = 40
	textualSize  = 60
	personalSize = 80
	memorySize   = 40

	cosineScript = "cosineSimilarity(params.query_vector, 'vector') + 1.0"

	personalWildcard = "*Personalhåndbok*"
)

var sourceFields = []string{"text", "reference", "page"}

var numericFragment = regexp.MustCompile(`[0-9][0-9-]*[0-9]|[0-9]`)

// Filter builds the standards-scoped query for the including route: one
// wildcard clause per standard variant on reference.keyword, at least one
// must match.
func Filter(standards []string, vec []float32) (*datatypes.QueryObject, error) {
	if len(standards) == 0 {
		return nil, fmt.Errorf("filter query needs at least one standard")
	}
	return wildcardShould(standards, filterSize, vec)
}

// Memory builds the same shape as Filter from conversation-memory terms.
func Memory(terms []string, vec []float32) (*datatypes.QueryObject, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("memory query needs at least one term")
	}
	return wildcardShould(terms, memorySize, vec)
}

// Textual builds the free-text query for the without route.
func Textual(text string, vec []float32) (*datatypes.QueryObject, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("textual query needs non-empty text")
	}
	inner := map[string]any{
		"multi_match": map[string]any{
			"query":  text,
			"fields": []string{"text^2", "reference"},
		},
	}
	return assemble(inner, textualSize, vec)
}

// Personal builds the handbook-scoped query for the personal route.
func Personal(vec []float32) (*datatypes.QueryObject, error) {
	inner := map[string]any{
		"bool": map[string]any{
			"filter": []any{wildcardClause(personalWildcard)},
		},
	}
	return assemble(inner, personalSize, vec)
}

func wildcardShould(values []string, size int, vec []float32) (*datatypes.QueryObject, error) {
	var should []any
	for _, value := range values {
		for _, variant := range Variants(value) {
			should = append(should, wildcardClause("*"+variant+"*"))
		}
	}
	if len(should) == 0 {
		return nil, fmt.Errorf("no usable wildcard values")
	}
	inner := map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
	return assemble(inner, size, vec)
}

func wildcardClause(value string) map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			"reference.keyword": map[string]any{
				"value":            value,
				"case_insensitive": true,
			},
		},
	}
}

func assemble(inner map[string]any, size int, vec []float32) (*datatypes.QueryObject, error) {
	query := inner
	if usableVector(vec) {
		query = map[string]any{
			"script_score": map[string]any{
				"query": inner,
				"script": map[string]any{
					"source": cosineScript,
					"params": map[string]any{"query_vector": vec},
				},
			},
		}
	}
	obj := &datatypes.QueryObject{
		Size:   size,
		Query:  query,
		Source: sourceFields,
	}
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	return obj, nil
}

// usableVector rejects nil and all-zero vectors; a zero vector makes the
// cosine script divide by zero.
func usableVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return true
		}
	}
	return false
}

// Variants expands a standard reference into the spellings that occur in
// indexed reference fields: with and without the year suffix, with the NS
// prefix dropped, NS-EN and EN interchanged, hyphens and spaces swapped,
// and the bare numeric fragment as a last resort.
func Variants(standard string) []string {
	base := strings.TrimSpace(standard)
	if base == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(base)
	noYear := base
	if idx := strings.IndexAny(base, ":+"); idx > 0 {
		noYear = base[:idx]
		add(noYear)
	}

	for _, stem := range []string{base, noYear} {
		switch {
		case strings.HasPrefix(stem, "NS-EN "):
			add(strings.Replace(stem, "NS-EN ", "EN ", 1))
			add(strings.Replace(stem, "NS-EN ", "NS EN ", 1))
		case strings.HasPrefix(stem, "NS EN "):
			add(strings.Replace(stem, "NS EN ", "EN ", 1))
			add(strings.Replace(stem, "NS EN ", "NS-EN ", 1))
		case strings.HasPrefix(stem, "EN "):
			add("NS-EN " + stem[len("EN "):])
		case strings.HasPrefix(stem, "NS-"):
			add(stem[len("NS-"):])
		case strings.HasPrefix(stem, "NS "):
			add(stem[len("NS "):])
		}
		if strings.Contains(stem, "-") {
			add(strings.ReplaceAll(stem, "-", " "))
		}
		if strings.Contains(stem, " ") {
			add(strings.ReplaceAll(stem, " ", "-"))
		}
	}

	if frag := numericFragment.FindString(noYear); frag != "" && frag != noYear {
		add(frag)
	}
	return out
}
