package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Charset maps CTC class indices to tokens. Index 0 is the blank class, so
// token i of the dictionary is class i+1. Models trained with a trailing
// space class expose one class more than the dictionary holds.
type Charset struct {
	Tokens []string
	index  map[string]int
}

// LoadCharset reads a dictionary file with one token per line.
func LoadCharset(path string) (*Charset, error) {
	if path == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: dictionary path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Error closing dictionary file", "path", path, "error", err)
		}
	}()
	cs, err := ParseCharset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

// ParseCharset reads tokens from r. Lines are trimmed, a leading UTF-8 BOM is
// dropped and empty lines are skipped.
func ParseCharset(r io.Reader) (*Charset, error) {
	scanner := bufio.NewScanner(r)
	tokens := make([]string, 0, 128)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("dictionary is empty")
	}
	return NewCharset(tokens), nil
}

// NewCharset builds a charset from tokens. Duplicates keep their first index.
func NewCharset(tokens []string) *Charset {
	idx := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, ok := idx[t]; !ok {
			idx[t] = i
		}
	}
	return &Charset{Tokens: tokens, index: idx}
}

// Size returns the number of dictionary tokens.
func (c *Charset) Size() int { return len(c.Tokens) }

// Class returns the token for CTC class k. The blank class and out of range
// indices yield "". The class right after the dictionary is the space class.
func (c *Charset) Class(k int) string {
	switch {
	case k <= 0:
		return ""
	case k <= len(c.Tokens):
		return c.Tokens[k-1]
	case k == len(c.Tokens)+1:
		return " "
	default:
		return ""
	}
}

// Mask returns, for numClasses CTC classes, which ones may be emitted under
// allow. The blank class is always allowed. A nil mask allows everything.
func (c *Charset) Mask(allow string, numClasses int) []bool {
	if allow == "" {
		return nil
	}
	mask := make([]bool, numClasses)
	mask[0] = true
	for k := 1; k < numClasses; k++ {
		tok := c.Class(k)
		if tok == "" {
			continue
		}
		ok := true
		for _, r := range tok {
			if !strings.ContainsRune(allow, r) {
				ok = false
				break
			}
		}
		mask[k] = ok
	}
	return mask
}

// Index returns the CTC class of tok.
func (c *Charset) Index(tok string) (int, bool) {
	i, ok := c.index[tok]
	if !ok {
		return 0, false
	}
	return i + 1, true
}
