// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kristoman-rikardo/standardgpt/validation"
)

const (
	titleTimeout   = 8 * time.Second
	maxTitleLength = 30
	fallbackTitle  = "Ny chat"
)

// topicBuckets maps keywords to a ready-made title when no standard
// reference is present.
var topicBuckets = []struct {
	keywords []string
	title    string
}{
	{[]string{"vindlast", "vind"}, "Vindlast"},
	{[]string{"snølast", "snø"}, "Snølast"},
	{[]string{"brann", "brannsikkerhet", "brannkrav"}, "Brannsikkerhet"},
	{[]string{"ventilasjon", "luftmengde", "inneklima"}, "Ventilasjon og inneklima"},
	{[]string{"betong", "armering"}, "Betongkonstruksjoner"},
	{[]string{"stål", "stålkonstruksjon"}, "Stålkonstruksjoner"},
	{[]string{"universell", "utforming", "tilgjengelighet"}, "Universell utforming"},
	{[]string{"personalhåndbok", "sykefravær", "ferie", "permisjon"}, "Personalhåndboken"},
	{[]string{"elektro", "elektrisk", "installasjon"}, "Elektriske installasjoner"},
}

var stopWords = map[string]struct{}{
	"hva": {}, "hvordan": {}, "hvilke": {}, "hvilken": {}, "hvor": {},
	"er": {}, "om": {}, "i": {}, "på": {}, "til": {}, "for": {}, "med": {},
	"og": {}, "det": {}, "den": {}, "de": {}, "en": {}, "et": {},
	"sier": {}, "står": {}, "gjelder": {}, "kan": {}, "skal": {}, "må": {},
}

// generateTitle asks the configured Titler first and falls back to a
// deterministic title. The pipeline never blocks on this longer than the
// title timeout.
func (s *ConversationStore) generateTitle(ctx context.Context, question, answer string) string {
	if s.titler != nil {
		titleCtx, cancel := context.WithTimeout(ctx, titleTimeout)
		defer cancel()
		if title, err := s.titler.Title(titleCtx, question, answer); err == nil {
			title = strings.TrimSpace(strings.Trim(title, `"'`))
			if title != "" && len([]rune(title)) <= 60 {
				return title
			}
		} else {
			slog.Debug("title generation fell back", "error", err)
		}
	}
	return DeterministicTitle(question, answer)
}

// DeterministicTitle derives a title without any LLM involvement: standard
// references first, then a topic bucket, then the first content words.
func DeterministicTitle(question, answer string) string {
	standards := validation.ExtractStandards(question)
	if len(standards) == 0 {
		standards = validation.ExtractStandards(answer)
	}
	switch {
	case len(standards) == 1:
		return standards[0]
	case len(standards) == 2 || len(standards) == 3:
		return strings.Join(standards, " og ")
	case len(standards) > 3:
		return fmt.Sprintf("%s og %d andre", standards[0], len(standards)-1)
	}

	lower := strings.ToLower(question)
	for _, bucket := range topicBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.title
			}
		}
	}

	var content []string
	for _, word := range strings.Fields(question) {
		cleaned := strings.Trim(word, ".,!?;:")
		if cleaned == "" {
			continue
		}
		if _, skip := stopWords[strings.ToLower(cleaned)]; skip {
			continue
		}
		content = append(content, cleaned)
		if len(content) == 3 {
			break
		}
	}
	if len(content) > 0 {
		title := strings.Join(content, " ")
		if runes := []rune(title); len(runes) > maxTitleLength {
			title = string(runes[:maxTitleLength-3]) + "..."
		}
		return title
	}
	return fallbackTitle
}
