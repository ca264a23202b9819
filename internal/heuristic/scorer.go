// Package heuristic implements the deterministic baseline scorer.
//
// The scorer is a pure function of the content text: no I/O, no clock, no
// randomness. That is what makes it usable both as the synchronous floor on
// submission and as the fallback when the external refinement fails.
package heuristic

import (
	"math"
	"sort"
	"strings"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/hypeindex/enhancement/internal/domain"
)

// Scoring weights. Hype starts at the floor and is pushed up by marketing
// superlatives and exclamation marks, down by technical vocabulary. Ethics
// starts neutral and moves on privacy, labor, and environment signals.
const (
	hypeBase          = 1.0
	hypeTermWeight    = 0.8
	exclamationWeight = 0.3
	technicalWeight   = 0.2

	ethicsBase        = 5.0
	privacyTermWeight = 0.5
	laborPenalty      = 2.0
	environmentBonus  = 1.0
)

// Result is the heuristic score for one piece of content.
type Result struct {
	HypeScore   float64  `json:"hype_score"`
	EthicsScore float64  `json:"ethics_score"`
	ImpactTags  []string `json:"impact_tags"`
}

type lexiconEntry struct {
	term     string
	category string
}

// Lexicon categories used for matcher bookkeeping.
const (
	catHype        = "hype"
	catTechnical   = "technical"
	catPrivacy     = "privacy"
	catLabor       = "labor"
	catEnvironment = "environment"
	catSafety      = "safety"
)

// Scorer scans content against the fixed term lexicons. A single Aho-Corasick
// automaton over all lexicons finds which terms are present in one pass;
// occurrence counts are then taken only for present terms.
type Scorer struct {
	matcher *ahocorasick.Matcher
	entries []lexiconEntry
}

// NewScorer builds the scorer's automaton. The lexicons are fixed at compile
// time, so one Scorer can be shared by every caller.
func NewScorer() *Scorer {
	entries := make([]lexiconEntry, 0,
		len(hypeTerms)+len(technicalTerms)+len(privacyTerms)+
			len(laborTerms)+len(environmentTerms)+len(safetyTerms))

	add := func(terms []string, category string) {
		for _, t := range terms {
			entries = append(entries, lexiconEntry{term: t, category: category})
		}
	}
	add(hypeTerms, catHype)
	add(technicalTerms, catTechnical)
	add(privacyTerms, catPrivacy)
	add(laborTerms, catLabor)
	add(environmentTerms, catEnvironment)
	add(safetyTerms, catSafety)

	patterns := make([]string, len(entries))
	for i, e := range entries {
		patterns[i] = e.term
	}

	return &Scorer{
		matcher: ahocorasick.NewStringMatcher(patterns),
		entries: entries,
	}
}

// Score computes the baseline hype and ethics scores plus impact tags for
// the given content. Empty input is zero matches, not an error.
func (s *Scorer) Score(title, body string) Result {
	text := normalizeText(title + " " + body)
	exclamations := strings.Count(title+" "+body, "!")

	present := make(map[string][]string) // category -> present terms
	for _, hit := range s.matcher.Match([]byte(text)) {
		if hit < 0 || hit >= len(s.entries) {
			continue
		}
		e := s.entries[hit]
		present[e.category] = append(present[e.category], e.term)
	}

	hype := hypeBase +
		hypeTermWeight*float64(countOccurrences(text, present[catHype])) +
		exclamationWeight*float64(exclamations) -
		technicalWeight*float64(countOccurrences(text, present[catTechnical]))

	ethics := ethicsBase +
		privacyTermWeight*float64(countOccurrences(text, present[catPrivacy]))
	if len(present[catLabor]) > 0 {
		ethics -= laborPenalty
	}
	if len(present[catEnvironment]) > 0 {
		ethics += environmentBonus
	}

	return Result{
		HypeScore:   roundOneDecimal(domain.ClampScore(hype)),
		EthicsScore: roundOneDecimal(domain.ClampScore(ethics)),
		ImpactTags:  impactTags(present),
	}
}

// countOccurrences totals the occurrences of each term in text. Only terms
// the automaton already found are counted, so the common no-match case never
// rescans the text.
func countOccurrences(text string, terms []string) int {
	total := 0
	for _, term := range terms {
		total += strings.Count(text, term)
	}
	return total
}

// impactTags maps matched categories to the stable tag set. Tags are sorted
// so identical input always yields identical output; membership is what
// matters to callers.
func impactTags(present map[string][]string) []string {
	tags := make([]string, 0, 4)
	if len(present[catPrivacy]) > 0 {
		tags = append(tags, domain.TagPrivacy)
	}
	if len(present[catLabor]) > 0 {
		tags = append(tags, domain.TagLabor)
	}
	if len(present[catEnvironment]) > 0 {
		tags = append(tags, domain.TagEnvironment)
	}
	if len(present[catSafety]) > 0 {
		tags = append(tags, domain.TagSafety)
	}
	sort.Strings(tags)
	return tags
}

// normalizeText lowercases and collapses punctuation to spaces, preserving
// hyphens so hyphenated lexicon terms still match.
func normalizeText(text string) string {
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
