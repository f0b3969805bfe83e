// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var queryValidate = validator.New()

// QueryObject is the body posted to the Elasticsearch _search endpoint.
// Query holds the root expression as a JSON-shaped map because the four
// builders emit structurally different trees (wildcard should-lists,
// multi_match, filtered bool, script_score wrappers).
type QueryObject struct {
	Size   int            `json:"size" validate:"gt=0"`
	Query  map[string]any `json:"query" validate:"required,min=1"`
	Source []string       `json:"_source,omitempty"`
}

// Validate rejects objects that would make Elasticsearch return a 400
// instead of hits.
func (q *QueryObject) Validate() error {
	if q == nil {
		return fmt.Errorf("query object is nil")
	}
	if err := queryValidate.Struct(q); err != nil {
		return fmt.Errorf("invalid query object: %w", err)
	}
	return nil
}

// SearchResponse mirrors the subset of the Elasticsearch response the
// pipeline consumes.
type SearchResponse struct {
	Took int        `json:"took"`
	Hits SearchHits `json:"hits"`
}

type SearchHits struct {
	Total SearchTotal `json:"total"`
	Hits  []Hit       `json:"hits"`
}

type SearchTotal struct {
	Value int `json:"value"`
}

type Hit struct {
	Score  float64   `json:"_score"`
	Source HitSource `json:"_source"`
}

// HitSource carries the projected document fields. Page is untyped because
// indexed documents store it either as a string or a number.
type HitSource struct {
	Text      string `json:"text"`
	Reference string `json:"reference"`
	Page      any    `json:"page"`
}

// PageString renders the page field for display, empty when absent.
func (h HitSource) PageString() string {
	switch v := h.Page.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// EmptySearchResponse is what the search client substitutes for transport
// and non-2xx failures so the pipeline can treat them as zero hits.
func EmptySearchResponse() *SearchResponse {
	return &SearchResponse{}
}
