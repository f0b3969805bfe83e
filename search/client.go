package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
)

// Searcher is the retrieval surface the pipeline depends on.
type Searcher interface {
	Search(ctx context.Context, query *datatypes.QueryObject) *datatypes.SearchResponse
	Ping(ctx context.Context) error
}

const (
	// NoDocumentsFound is the exact chunk text the answer prompt receives
	// when retrieval came back empty.
	NoDocumentsFound = "Ingen relevante dokumenter funnet."

	maxChunkTextLength = 1800
	maxChunksTotal     = 200 * 1024
)

// Client posts query objects to an Elasticsearch index over HTTP.
type Client struct {
	baseURL string
	index   string
	apiKey  string
	httpc   *http.Client
}

var _ Searcher = (*Client)(nil)

func NewClient(baseURL, index, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Search runs the query and never fails the pipeline: transport errors and
// non-2xx statuses degrade to an empty response, which downstream treats
// as zero hits.
func (c *Client) Search(ctx context.Context, query *datatypes.QueryObject) *datatypes.SearchResponse {
	if err := query.Validate(); err != nil {
		slog.Error("refusing to submit invalid search query", "error", err)
		return datatypes.EmptySearchResponse()
	}

	body, err := json.Marshal(query)
	if err != nil {
		slog.Error("marshalling search query", "error", err)
		return datatypes.EmptySearchResponse()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL(), bytes.NewReader(body))
	if err != nil {
		slog.Error("building search request", "error", err)
		return datatypes.EmptySearchResponse()
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		slog.Warn("search request failed", "error", err)
		return datatypes.EmptySearchResponse()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("search returned non-success status",
			"status", resp.StatusCode,
			"body", string(snippet))
		return datatypes.EmptySearchResponse()
	}

	var parsed datatypes.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("decoding search response", "error", err)
		return datatypes.EmptySearchResponse()
	}
	return &parsed
}

// Ping submits a one-document match_all, for the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	probe := &datatypes.QueryObject{
		Size:  1,
		Query: map[string]any{"match_all": map[string]any{}},
	}
	body, _ := json.Marshal(probe)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("search engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("search engine returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) searchURL() string {
	return c.baseURL + "/" + c.index + "/_search"
}

// FormatChunks renders the hits into the text the answer prompt consumes.
// Each hit is truncated to 1800 chars; the whole blob stops growing past
// 200 KB. Zero hits yield the NoDocumentsFound literal.
func FormatChunks(resp *datatypes.SearchResponse) string {
	if resp == nil || len(resp.Hits.Hits) == 0 {
		return NoDocumentsFound
	}

	var b strings.Builder
	for i, hit := range resp.Hits.Hits {
		text := hit.Source.Text
		if len(text) > maxChunkTextLength {
			text = truncateOnRune(text, maxChunkTextLength) + "..."
		}
		section := fmt.Sprintf("Dokument %d (score: %.2f):\nReferanse: %s\nSide: %s\nInnhold: %s\n---",
			i+1, hit.Score, hit.Source.Reference, hit.Source.PageString(), text)
		if b.Len()+len(section)+2 > maxChunksTotal {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(section)
	}
	if b.Len() == 0 {
		return NoDocumentsFound
	}
	return b.String()
}

// truncateOnRune cuts s to at most n bytes without splitting a UTF-8
// sequence.
func truncateOnRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
