package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Question length bounds, overridable through Validator fields.
const (
	DefaultMinLength = 3
	DefaultMaxLength = 1000
)

// InvalidQuestionError carries the Norwegian user-facing reason a question
// was rejected. These are never retried.
type InvalidQuestionError struct {
	Reason string
}

func (e *InvalidQuestionError) Error() string { return e.Reason }

// IsInvalidQuestion reports whether err is a question rejection.
func IsInvalidQuestion(err error) bool {
	var ve *InvalidQuestionError
	return errors.As(err, &ve)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// dangerousPatterns trip an immediate rejection. Checked after whitespace
// normalisation so split-across-lines payloads still match.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`__\w+__`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`[<>]`),
	regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]"),
}

// standardNumberPattern matches references such as "NS-EN 13141-8:2006",
// "ISO/IEC 27001:2013" and "EN 1991-1-4" in upper-cased text: one to four
// short alphabetic prefix segments, a numeric body, and an optional
// year/variant suffix.
var standardNumberPattern = regexp.MustCompile(
	`\b[A-Z]{1,5}(?:[ \-/][A-Z]{1,5}){0,3}[ \-][0-9][0-9A-Z]*(?:-[0-9A-Z]+)*(?:[:+][0-9A-Z-]{1,20})?\b`,
)

const maxStandardLength = 50

// Validator sanitises incoming questions. The zero value is not usable;
// construct with New.
type Validator struct {
	MinLength int
	MaxLength int
}

func New() *Validator {
	return &Validator{MinLength: DefaultMinLength, MaxLength: DefaultMaxLength}
}

// Sanitize normalises whitespace and enforces length and content rules.
// The returned string is stable: re-validating it yields the same value.
func (v *Validator) Sanitize(raw string) (string, error) {
	cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
	if cleaned == "" || len([]rune(cleaned)) < v.MinLength {
		return "", &InvalidQuestionError{
			Reason: fmt.Sprintf("Spørsmål må være minst %d tegn langt", v.MinLength),
		}
	}
	if len([]rune(cleaned)) > v.MaxLength {
		return "", &InvalidQuestionError{
			Reason: fmt.Sprintf("Spørsmålet kan ikke være lengre enn %d tegn", v.MaxLength),
		}
	}
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(cleaned) {
			return "", &InvalidQuestionError{Reason: "Spørsmålet inneholder ugyldig innhold"}
		}
	}
	return cleaned, nil
}

// ValidStandardNumbers upper-cases the candidates, keeps those matching the
// standard-number pattern, and deduplicates preserving first occurrence.
func ValidStandardNumbers(candidates []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		s := strings.ToUpper(strings.TrimSpace(c))
		if s == "" || len(s) > maxStandardLength {
			continue
		}
		if standardNumberPattern.FindString(s) != s {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ExtractStandards scans free text for standard-number tokens and
// deduplicates them in order of appearance. The scan is case-sensitive:
// references are written in capitals, and matching lower-case words would
// swallow ordinary prose into the prefix segments.
func ExtractStandards(text string) []string {
	matches := standardNumberPattern.FindAllString(text, -1)
	var out []string
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if len(m) > maxStandardLength {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
