// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator runs the multi-stage query pipeline: validate,
// optimise and analyse in parallel, extract, route, embed, search, and
// stream the answer while publishing progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
	"github.com/kristoman-rikardo/standardgpt/embedding"
	"github.com/kristoman-rikardo/standardgpt/llm"
	"github.com/kristoman-rikardo/standardgpt/memory"
	"github.com/kristoman-rikardo/standardgpt/observability"
	"github.com/kristoman-rikardo/standardgpt/progress"
	"github.com/kristoman-rikardo/standardgpt/prompts"
	"github.com/kristoman-rikardo/standardgpt/querybuilder"
	"github.com/kristoman-rikardo/standardgpt/search"
	"github.com/kristoman-rikardo/standardgpt/validation"
)

const (
	// DefaultTimeout caps a non-streaming pipeline run. Streaming runs get
	// more room because token delivery is part of the budget.
	DefaultTimeout       = 30 * time.Second
	DefaultStreamTimeout = 45 * time.Second

	// Chunk budgets for the answer prompt. Streaming keeps the context
	// smaller so the first token arrives sooner.
	maxChunksStreaming    = 6 * 1024
	maxChunksNonStreaming = 15 * 1024

	timeoutMessage       = "Prosesseringen tok for lang tid. Prøv med et enklere spørsmål."
	answerFallbackText   = "Beklager, jeg klarte ikke å fullføre svaret. Prøv igjen senere."
	internalErrorMessage = "Noe gikk galt under prosesseringen. Prøv igjen."
)

// Engine wires the pipeline's collaborators. Construct with NewEngine.
type Engine struct {
	validator *validation.Validator
	llm       llm.Client
	embedder  embedding.Embedder
	searcher  search.Searcher
	prompts   *prompts.Store
	memory    *memory.Store
	bus       *progress.Bus
	tracer    trace.Tracer

	Timeout       time.Duration
	StreamTimeout time.Duration
}

// NewEngine panics on nil dependencies; wiring bugs should fail at boot,
// not on the first request.
func NewEngine(
	llmClient llm.Client,
	embedder embedding.Embedder,
	searcher search.Searcher,
	promptStore *prompts.Store,
	memoryStore *memory.Store,
	bus *progress.Bus,
) *Engine {
	if llmClient == nil || embedder == nil || searcher == nil || promptStore == nil || memoryStore == nil || bus == nil {
		panic("orchestrator.NewEngine: nil dependency")
	}
	return &Engine{
		validator:     validation.New(),
		llm:           llmClient,
		embedder:      embedder,
		searcher:      searcher,
		prompts:       promptStore,
		memory:        memoryStore,
		bus:           bus,
		tracer:        otel.Tracer("standardgpt/orchestrator"),
		Timeout:       DefaultTimeout,
		StreamTimeout: DefaultStreamTimeout,
	}
}

// SetTimeouts derives both pipeline deadlines from the configured base.
// Streaming keeps at least the default headroom since token delivery is
// part of the run.
func (e *Engine) SetTimeouts(base time.Duration) {
	e.Timeout = base
	e.StreamTimeout = max(base, DefaultStreamTimeout)
}

// SetQuestionBounds overrides the validator's default length limits.
func (e *Engine) SetQuestionBounds(minLen, maxLen int) {
	e.validator.MinLength = minLen
	e.validator.MaxLength = maxLen
}

// ProcessQuery runs the pipeline without streaming. sessionID selects the
// conversation memory; it may be empty for a one-shot question.
func (e *Engine) ProcessQuery(ctx context.Context, question, sessionID string) (*datatypes.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	return e.run(ctx, question, sessionID, "", false)
}

// StreamQuery runs the pipeline publishing progress and tokens to the
// stream session streamID. The result is also returned for persistence.
// The caller publishes the terminal final_answer event once persistence
// and conversation events are done; pipeline errors close the stream here.
func (e *Engine) StreamQuery(ctx context.Context, question, sessionID, streamID string) (*datatypes.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.StreamTimeout)
	defer cancel()
	return e.run(ctx, question, sessionID, streamID, true)
}

// pipelineState carries intermediate values between phases.
type pipelineState struct {
	question           string
	conversationMemory string
	optimized          string
	analysis           string
	standards          []string
	memoryTerms        []string
	route              datatypes.Route
	memoryFallback     bool
	vector             []float32
	chunks             string
}

func (e *Engine) run(ctx context.Context, rawQuestion, sessionID, streamID string, streaming bool) (*datatypes.QueryResult, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.Bool("streaming", streaming),
			attribute.String("session.id", sessionID),
		))
	defer span.End()

	e.stage(streamID, datatypes.StageStarted, "Starter prosessering", "🚀")

	// ===== Phase 1: validation =====
	question, err := e.validator.Sanitize(rawQuestion)
	if err != nil {
		e.fail(streamID, span, "validation", err)
		return nil, err
	}
	e.stage(streamID, datatypes.StageValidation, "Spørsmål validert", "✅")

	st := &pipelineState{
		question:           question,
		conversationMemory: e.memory.Get(sessionID),
	}

	// ===== Phase 2: parallel optimise + analyse =====
	if err := e.optimizeAndAnalyze(ctx, st); err != nil {
		return nil, e.terminal(streamID, span, "analysis", err)
	}
	e.stage(streamID, datatypes.StageAnalysis, "Spørsmål analysert: "+st.analysis, "🔍")

	// ===== Phase 3: extraction =====
	if err := e.extract(ctx, st); err != nil {
		return nil, e.terminal(streamID, span, "extraction", err)
	}
	e.stage(streamID, datatypes.StageExtraction, "Nøkkelinformasjon hentet ut", "📋")

	// ===== Phase 4: route decision =====
	e.decideRoute(st)
	span.SetAttributes(attribute.String("route", string(st.route)))
	e.stage(streamID, datatypes.StageRouting, "Søkestrategi valgt: "+string(st.route), "🧭")

	// ===== Phase 5: embedding (optional) =====
	st.vector = e.embedder.Embed(ctx, st.optimized)
	if st.vector == nil {
		if m := observability.DefaultMetrics; m != nil {
			m.EmbeddingFailures.Inc()
		}
		slog.Info("continuing without embedding vector", "sessionId", sessionID)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.terminal(streamID, span, "embedding", err)
	}

	// ===== Phase 6+7: query build and search =====
	e.publishSearchProgress(streamID, 45, "Søker i standardene")
	if err := e.buildAndSearch(ctx, st, streamID); err != nil {
		return nil, e.terminal(streamID, span, "search", err)
	}
	e.publishSearchProgress(streamID, 75, "Søkeresultater klare")

	// ===== Phase 8: answer =====
	budget := maxChunksNonStreaming
	if streaming {
		budget = maxChunksStreaming
	}
	st.chunks = trimChunks(st.chunks, budget)
	e.stage(streamID, datatypes.StageAnswer, "Genererer svar", "✍️")

	answer, err := e.answer(ctx, st, streamID, streaming)
	if err != nil {
		return nil, e.terminal(streamID, span, "answer", err)
	}

	// ===== Phase 9: persist exchange =====
	if question != "" && answer != "" && sessionID != "" {
		e.memory.Append(sessionID, question, answer)
	}

	// ===== Phase 10: complete =====
	// The terminal final_answer event is the caller's to publish, after it
	// has persisted the conversation and emitted its id and title events.
	e.stage(streamID, datatypes.StageComplete, "Ferdig", "🎉")

	result := &datatypes.QueryResult{
		Answer:         answer,
		Route:          st.route,
		Standards:      st.standards,
		MemoryTerms:    st.memoryTerms,
		MemoryFallback: st.memoryFallback,
		ProcessingTime: time.Since(started),
	}
	if m := observability.DefaultMetrics; m != nil {
		m.QueriesTotal.WithLabelValues(string(st.route), "success").Inc()
		m.QueryDurationSeconds.WithLabelValues(string(st.route)).Observe(result.ProcessingTime.Seconds())
	}
	span.SetAttributes(attribute.Int64("processing.ms", result.ProcessingTime.Milliseconds()))
	return result, nil
}

// optimizeAndAnalyze issues the two independent LLM calls of phase 2.
// Neither is allowed to sink the pipeline: optimisation falls back to the
// raw question and analysis to the without route.
func (e *Engine) optimizeAndAnalyze(ctx context.Context, st *pipelineState) error {
	kwargs := map[string]string{"conversation_memory": st.conversationMemory}
	vars := prompts.Vars{LastUtterance: st.question, ConversationMemory: st.conversationMemory}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prompt, err := e.prompts.Render(prompts.NamespaceOptimizeSemantic, vars)
		if err != nil {
			return err
		}
		optimized, err := e.llm.Complete(gctx, prompts.NamespaceOptimizeSemantic, prompt, kwargs)
		if err != nil || strings.TrimSpace(optimized) == "" {
			slog.Warn("semantic optimisation failed, using raw question", "error", err)
			optimized = st.question
		}
		st.optimized = strings.TrimSpace(optimized)
		return nil
	})
	g.Go(func() error {
		prompt, err := e.prompts.Render(prompts.NamespaceAnalysis, vars)
		if err != nil {
			return err
		}
		out, err := e.llm.Complete(gctx, prompts.NamespaceAnalysis, prompt, kwargs)
		if err != nil {
			slog.Warn("analysis failed, falling back to without", "error", err)
			out = string(datatypes.RouteWithout)
		}
		st.analysis = cleanAnalysis(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// cleanAnalysis strips quoting and punctuation from the model output and
// coerces anything outside the route space to without.
func cleanAnalysis(out string) string {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(out), "\"'`()[]{}.,!?;: \n\r\t"))
	if !datatypes.ValidRoute(cleaned) {
		return string(datatypes.RouteWithout)
	}
	return cleaned
}

// extract runs phase 3. The memory branch may downgrade the analysis to
// without; that downgrade is the only permitted post-analysis route change
// and happens at most once.
func (e *Engine) extract(ctx context.Context, st *pipelineState) error {
	kwargs := map[string]string{"conversation_memory": st.conversationMemory}
	vars := prompts.Vars{LastUtterance: st.question, ConversationMemory: st.conversationMemory}

	if st.analysis == string(datatypes.RouteMemory) {
		if st.conversationMemory != memory.NoMemory {
			prompt, err := e.prompts.Render(prompts.NamespaceExtractFromMemory, vars)
			if err != nil {
				return err
			}
			out, err := e.llm.Complete(ctx, prompts.NamespaceExtractFromMemory, prompt, kwargs)
			if err != nil {
				slog.Warn("memory extraction failed", "error", err)
				out = ""
			}
			// Only validated references survive; free-text terms cannot
			// drive the wildcard builder.
			st.memoryTerms = validation.ValidStandardNumbers(parseTerms(out))
			if len(st.memoryTerms) == 0 {
				st.memoryTerms = validation.ExtractStandards(out)
			}
		}
		if len(st.memoryTerms) == 0 {
			st.analysis = string(datatypes.RouteWithout)
			st.memoryFallback = true
			if m := observability.DefaultMetrics; m != nil {
				m.RouteDowngradesTotal.Inc()
			}
			slog.Info("memory route downgraded to without")
		}
		return ctx.Err()
	}

	prompt, err := e.prompts.Render(prompts.NamespaceExtractStandard, vars)
	if err != nil {
		return err
	}
	out, err := e.llm.Complete(ctx, prompts.NamespaceExtractStandard, prompt, kwargs)
	if err != nil {
		slog.Warn("standard extraction failed", "error", err)
		out = ""
	}
	st.standards = validation.ValidStandardNumbers(parseTerms(out))

	// An including analysis with nothing extracted gets one more chance:
	// the reference may live in the conversation memory.
	if len(st.standards) == 0 && st.analysis == string(datatypes.RouteIncluding) && st.conversationMemory != memory.NoMemory {
		st.standards = validation.ExtractStandards(st.conversationMemory)
	}
	return ctx.Err()
}

// parseTerms splits comma-separated model output into trimmed terms.
func parseTerms(out string) []string {
	var terms []string
	for _, part := range strings.Split(out, ",") {
		if t := strings.TrimSpace(part); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// decideRoute finalises the route from the analysis and extraction
// results. Pure function of the state; assigned exactly once here.
func (e *Engine) decideRoute(st *pipelineState) {
	switch {
	case st.analysis == string(datatypes.RouteMemory) && len(st.memoryTerms) > 0:
		st.route = datatypes.RouteMemory
	case st.analysis == string(datatypes.RouteIncluding) && len(st.standards) > 0:
		st.route = datatypes.RouteIncluding
	case strings.Contains(st.analysis, "personal"):
		st.route = datatypes.RoutePersonal
	default:
		st.route = datatypes.RouteWithout
	}
}

// buildAndSearch runs phases 6 and 7: compose the query for the final
// route, submit it, and format chunks. The including route retries once
// with a textual query when the standards-scoped search comes back empty.
func (e *Engine) buildAndSearch(ctx context.Context, st *pipelineState, streamID string) error {
	var (
		query *datatypes.QueryObject
		err   error
	)

	switch st.route {
	case datatypes.RouteIncluding:
		if len(st.standards) == 0 {
			// Late safety net; decideRoute normally prevents this.
			st.route = datatypes.RouteWithout
			if m := observability.DefaultMetrics; m != nil {
				m.RouteDowngradesTotal.Inc()
			}
			return e.buildAndSearch(ctx, st, streamID)
		}
		query, err = querybuilder.Filter(st.standards, st.vector)
	case datatypes.RouteMemory:
		query, err = querybuilder.Memory(st.memoryTerms, st.vector)
	case datatypes.RoutePersonal:
		query, err = querybuilder.Personal(st.vector)
	default:
		text := e.optimizeTextual(ctx, st)
		query, err = querybuilder.Textual(text, st.vector)
	}
	if err != nil {
		return fmt.Errorf("building %s query: %w", st.route, err)
	}

	resp := e.searcher.Search(ctx, query)
	if m := observability.DefaultMetrics; m != nil {
		m.SearchHitsPerQuery.Observe(float64(len(resp.Hits.Hits)))
	}

	if len(resp.Hits.Hits) == 0 && st.route == datatypes.RouteIncluding {
		e.publishSearchProgress(streamID, 60, "Utvider søket")
		text := e.optimizeTextual(ctx, st)
		fallbackQuery, qerr := querybuilder.Textual(text, st.vector)
		if qerr == nil {
			resp = e.searcher.Search(ctx, fallbackQuery)
		}
	}

	st.chunks = search.FormatChunks(resp)
	return ctx.Err()
}

// optimizeTextual produces the match text for the textual builder, falling
// back to the semantically optimised question.
func (e *Engine) optimizeTextual(ctx context.Context, st *pipelineState) string {
	vars := prompts.Vars{LastUtterance: st.question, ConversationMemory: st.conversationMemory}
	prompt, err := e.prompts.Render(prompts.NamespaceOptimizeTextual, vars)
	if err != nil {
		return st.optimized
	}
	kwargs := map[string]string{"conversation_memory": st.conversationMemory}
	out, err := e.llm.Complete(ctx, prompts.NamespaceOptimizeTextual, prompt, kwargs)
	if err != nil || strings.TrimSpace(out) == "" {
		return st.optimized
	}
	return strings.TrimSpace(out)
}

// answer runs phase 8. Streaming failures fall back to one non-streaming
// call; if both fail the user gets an apology text, which still counts as
// an answer for persistence.
func (e *Engine) answer(ctx context.Context, st *pipelineState, streamID string, streaming bool) (string, error) {
	vars := prompts.Vars{
		LastUtterance:      st.question,
		Chunks:             st.chunks,
		ConversationMemory: st.conversationMemory,
	}
	prompt, err := e.prompts.Render(prompts.NamespaceAnswer, vars)
	if err != nil {
		return "", err
	}
	kwargs := map[string]string{"conversation_memory": st.conversationMemory}

	if !streaming {
		answer, err := e.llm.Complete(ctx, prompts.NamespaceAnswer, prompt, kwargs)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", err
			}
			slog.Error("answer generation failed", "error", err)
			return answerFallbackText, nil
		}
		return answer, nil
	}

	var b strings.Builder
	firstToken := true
	startedAt := time.Now()
	streamErr := e.llm.Stream(ctx, prompts.NamespaceAnswer, prompt, func(token string) error {
		if firstToken {
			firstToken = false
			if m := observability.DefaultMetrics; m != nil {
				m.TimeToFirstTokenSecs.Observe(time.Since(startedAt).Seconds())
			}
		}
		b.WriteString(token)
		e.bus.Publish(streamID, datatypes.TokenEvent(token, false))
		if m := observability.DefaultMetrics; m != nil {
			m.TokensTotal.Inc()
		}
		return nil
	})
	if streamErr == nil {
		return b.String(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", streamErr
	}

	slog.Warn("streaming answer failed, attempting non-streaming fallback",
		"partialBytes", b.Len(), "error", streamErr)
	answer, err := e.llm.Complete(ctx, prompts.NamespaceAnswer, prompt, kwargs)
	if err == nil {
		return answer, nil
	}
	if partial := b.String(); partial != "" {
		return partial, nil
	}
	return answerFallbackText, nil
}

// trimChunks enforces the answer-prompt chunk budget: drop whole hit
// sections from the tail first, hard-truncate as a last resort.
func trimChunks(chunks string, budget int) string {
	if len(chunks) <= budget {
		return chunks
	}
	sections := strings.Split(chunks, "\n\n")
	var kept []string
	total := 0
	for _, section := range sections {
		next := total + len(section)
		if len(kept) > 0 {
			next += 2
		}
		if next > budget {
			break
		}
		kept = append(kept, section)
		total = next
	}
	trimmed := strings.Join(kept, "\n\n")
	if trimmed == "" {
		trimmed = chunks[:budget]
		for len(trimmed) > 0 && trimmed[len(trimmed)-1]&0xC0 == 0x80 {
			trimmed = trimmed[:len(trimmed)-1]
		}
		trimmed += "..."
	}
	return trimmed
}

// ===== Progress and error plumbing =====

func (e *Engine) stage(streamID, stage, message, emoji string) {
	if streamID == "" {
		return
	}
	e.bus.Stage(streamID, stage, message, emoji)
}

// publishSearchProgress emits the subdivided 45-75 search range.
func (e *Engine) publishSearchProgress(streamID string, percent int, message string) {
	if streamID == "" {
		return
	}
	e.bus.Publish(streamID, datatypes.StageEvent(datatypes.StageSearch, message, percent, "📚"))
}

// fail reports a terminal pre-pipeline error (validation).
func (e *Engine) fail(streamID string, span trace.Span, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if m := observability.DefaultMetrics; m != nil {
		m.ErrorsTotal.WithLabelValues(stage).Inc()
	}
	if streamID != "" {
		e.bus.Publish(streamID, datatypes.ErrorEvent(err.Error()))
	}
}

// terminal wraps a mid-pipeline failure, mapping deadline expiry to the
// Norwegian timeout message.
func (e *Engine) terminal(streamID string, span trace.Span, stage string, err error) error {
	userErr := err
	if errors.Is(err, context.DeadlineExceeded) {
		userErr = errors.New(timeoutMessage)
	} else if !validation.IsInvalidQuestion(err) && !llm.IsGenerationError(err) {
		userErr = fmt.Errorf("%s: %w", internalErrorMessage, err)
	}
	e.fail(streamID, span, stage, userErr)
	if m := observability.DefaultMetrics; m != nil {
		m.QueriesTotal.WithLabelValues("", "error").Inc()
	}
	return userErr
}
