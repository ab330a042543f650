// Package geo resolves a location for unstructured content before publish.
package geo

import (
	"strings"
	"unicode"
)

// Prepositions that tend to introduce a place name.
var locationPrepositions = map[string]bool{
	"in":   true,
	"at":   true,
	"near": true,
	"from": true,
}

// Weather events are named after people, so the word right after the event
// type is a storm name, not a place.
var weatherEvents = map[string]bool{
	"cyclone":   true,
	"hurricane": true,
	"typhoon":   true,
	"storm":     true,
	"tornado":   true,
}

// Words that start sentences or headlines without naming anything.
var extractStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"new": true, "breaking": true, "live": true, "update": true,
	"watch": true, "video": true, "photos": true, "why": true, "how": true,
	"what": true, "when": true, "who": true, "after": true, "amid": true,
	"police": true, "government": true, "president": true, "minister": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// ExtractCandidates scans free text for place-name candidates, ordered by
// how they were found and de-duplicated. Strategies, in order: capitalized
// spans outside sentence starts, spans following prepositions, and
// capitalized words around a named weather event.
func ExtractCandidates(text string) []string {
	tokens := tokenize(text)

	var ordered []string
	seen := make(map[string]bool)
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return
		}
		key := strings.ToLower(candidate)
		if extractStopwords[key] || seen[key] {
			return
		}
		seen[key] = true
		ordered = append(ordered, candidate)
	}

	stormNames := stormNameIndexes(tokens)

	// Capitalized spans. A span at a sentence start only counts when it is
	// multi-word; mid-sentence capitals are strong place signals on their
	// own.
	i := 0
	for i < len(tokens) {
		if !isCapitalized(tokens[i].word) || stormNames[i] {
			i++
			continue
		}
		j := i
		for j < len(tokens) && isCapitalized(tokens[j].word) && !stormNames[j] {
			j++
		}
		span := joinWords(tokens[i:j])
		if j-i > 1 || !tokens[i].sentenceStart {
			add(span)
		}
		i = j
	}

	// Spans following prepositions, including lowercase ones the first pass
	// rejected as sentence starts.
	for i := 0; i < len(tokens)-1; i++ {
		if !locationPrepositions[strings.ToLower(tokens[i].word)] {
			continue
		}
		j := i + 1
		for j < len(tokens) && isCapitalized(tokens[j].word) && !stormNames[j] {
			j++
		}
		if j > i+1 {
			add(joinWords(tokens[i+1 : j]))
		}
	}

	return ordered
}

type token struct {
	word          string
	sentenceStart bool
}

func tokenize(text string) []token {
	var tokens []token
	start := true
	for _, field := range strings.Fields(text) {
		trimmed := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if trimmed != "" {
			tokens = append(tokens, token{word: trimmed, sentenceStart: start})
			start = false
		}
		if strings.ContainsAny(field, ".!?:") {
			start = true
		}
	}
	return tokens
}

// stormNameIndexes flags tokens that name the storm itself, e.g. "Alfred"
// in "Cyclone Alfred".
func stormNameIndexes(tokens []token) map[int]bool {
	flagged := make(map[int]bool)
	for i := 0; i < len(tokens)-1; i++ {
		if weatherEvents[strings.ToLower(tokens[i].word)] && isCapitalized(tokens[i+1].word) {
			flagged[i] = true
			flagged[i+1] = true
		}
	}
	return flagged
}

func isCapitalized(word string) bool {
	r := []rune(word)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

func joinWords(tokens []token) string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return strings.Join(words, " ")
}
