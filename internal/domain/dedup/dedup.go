// Package dedup builds comparable keys for detecting near-duplicate poems.
package dedup

import (
	"strings"
	"unicode"
)

// FingerprintTokens is how many normalized tokens a content fingerprint keeps.
const FingerprintTokens = 60

// Normalize lowercases s, maps curly quotes to straight ones, drops every
// character outside [a-z0-9], the Hebrew block and spaces, and collapses
// whitespace runs.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\u2018' || r == '\u2019':
			r = '\''
		case unicode.IsSpace(r):
			r = ' '
		}
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
		return true
	case r >= '\u0590' && r <= '\u05ff':
		return true
	}
	return false
}

// ContentFingerprint is the first FingerprintTokens tokens of the normalized text.
// Two texts sharing that prefix are treated as the same poem re-titled.
func ContentFingerprint(content string) string {
	tokens := strings.Fields(Normalize(content))
	if len(tokens) > FingerprintTokens {
		tokens = tokens[:FingerprintTokens]
	}
	return strings.Join(tokens, " ")
}

// Key is the normalized title::author pair.
func Key(title, author string) string {
	return Normalize(title) + "::" + Normalize(author)
}

// NormalizeWord folds a gloss key: lowercase, no Hebrew niqqud or cantillation,
// no Hebrew or Latin punctuation.
func NormalizeWord(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range strings.ToLower(word) {
		if r >= '\u0591' && r <= '\u05c7' {
			continue
		}
		if strings.ContainsRune(wordPunct, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

const wordPunct = "־׳״.,;:!?()\"“”'‘’«»-—–…[]{}"

// Gloss is one word or line with its explanation, in model output order.
type Gloss struct {
	Key   string
	Value string
}

// NormalizeKeys folds gloss keys with NormalizeWord. Empty keys and empty
// values are dropped; the first value wins on collision.
func NormalizeKeys(entries []Gloss) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		nk := NormalizeWord(e.Key)
		v := strings.TrimSpace(e.Value)
		if nk == "" || v == "" {
			continue
		}
		if _, exists := out[nk]; !exists {
			out[nk] = v
		}
	}
	return out
}
