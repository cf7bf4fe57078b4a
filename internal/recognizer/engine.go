// Package recognizer defines the OCR collaborator contract and its engines.
package recognizer

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/platex/internal/geometry"
)

// DigitsAllowList restricts recognition to decimal digits.
const DigitsAllowList = "0123456789"

// Token is one recognized text run inside the image passed to an Engine.
// Box is expressed in that image's pixel space.
type Token struct {
	Box        geometry.Box `json:"box"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
}

// Options tune a single Read call.
type Options struct {
	// AllowList restricts output characters. Empty allows everything.
	AllowList string
}

// Engine reads text from an image crop.
type Engine interface {
	Read(ctx context.Context, img image.Image, opts Options) ([]Token, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image, opts Options) ([]Token, error)

// Read calls f.
func (f EngineFunc) Read(ctx context.Context, img image.Image, opts Options) ([]Token, error) {
	return f(ctx, img, opts)
}

// Mode selects how several tokens of one field are combined.
type Mode string

const (
	// ModeConcatenate joins tokens with single spaces and averages confidence.
	ModeConcatenate Mode = "concatenate"
	// ModeBestToken keeps the token with the highest confidence.
	ModeBestToken Mode = "best_token"
	// ModeDigits joins tokens without separators and strips spaces.
	ModeDigits Mode = "digits"
)

// ParseMode validates a configured aggregation mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeConcatenate, ModeBestToken, ModeDigits:
		return m, nil
	case "":
		return ModeConcatenate, nil
	default:
		return "", fmt.Errorf("unknown aggregation mode %q", s)
	}
}

// Aggregate combines tokens into one field value and its confidence.
// An empty token list yields ("", 0).
func Aggregate(tokens []Token, mode Mode) (string, float64) {
	if len(tokens) == 0 {
		return "", 0
	}
	switch mode {
	case ModeBestToken:
		best := tokens[0]
		for _, t := range tokens[1:] {
			if t.Confidence > best.Confidence {
				best = t
			}
		}
		return strings.TrimSpace(best.Text), best.Confidence
	case ModeDigits:
		var b strings.Builder
		for _, t := range tokens {
			b.WriteString(t.Text)
		}
		return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", ""), meanConfidence(tokens)
	default:
		parts := make([]string, 0, len(tokens))
		for _, t := range tokens {
			parts = append(parts, t.Text)
		}
		return strings.TrimSpace(strings.Join(parts, " ")), meanConfidence(tokens)
	}
}

func meanConfidence(tokens []Token) float64 {
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}

// FilterAllowed drops every rune of s that is not in allow. An empty allow
// list returns s unchanged.
func FilterAllowed(s, allow string) string {
	if allow == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(allow, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
