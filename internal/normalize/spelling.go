// Package normalize cleans inbound message text before it reaches the model.
package normalize

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// corrections maps known misspellings of community vocabulary to their
// canonical spelling. Keys are lower case.
var corrections = map[string]string{
	"challege":      "challenge",
	"chalenges":     "challenges",
	"challange":     "challenge",
	"challanges":    "challenges",
	"challeng":      "challenge",
	"challengs":     "challenges",
	"intership":     "internship",
	"interships":    "internships",
	"oppurtunity":   "opportunity",
	"oppurtunities": "opportunities",
	"comunity":      "community",
	"techincal":     "technical",
	"techincally":   "technically",
	"submited":      "submitted",
	"submition":     "submission",
	"submitions":    "submissions",
	"compleated":    "completed",
	"compleate":     "complete",
	"oportunity":    "opportunity",
	"oportunities":  "opportunities",
}

var (
	controlChars      = regexp.MustCompile(`[\x{00}-\x{08}\x{0b}\x{0c}\x{0e}-\x{1f}\x{7f}-\x{9f}]`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
	spaceBeforePunct  = regexp.MustCompile(`\s+([.,!?;:])`)
	defaultNormalizer = mustNew(nil)
)

// Normalizer applies text cleanup and a fixed correction table. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	table   map[string]string
	pattern *regexp.Regexp
}

// New builds a Normalizer from the built-in table merged with extra entries.
// Extra entries may not map to another misspelling, which would break
// idempotence.
func New(extra map[string]string) (*Normalizer, error) {
	table := make(map[string]string, len(corrections)+len(extra))
	for k, v := range corrections {
		table[k] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, fmt.Errorf("correction entries must be non-empty (got %q -> %q)", k, v)
		}
		if strings.ContainsFunc(k, isNotWordRune) {
			return nil, fmt.Errorf("correction %q must be a single word", k)
		}
		table[k] = v
	}
	for k, v := range table {
		if _, chained := table[strings.ToLower(v)]; chained {
			return nil, fmt.Errorf("correction %q -> %q maps onto another correction", k, v)
		}
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	// Anchored at a word start; the trailing class stands in for \b, which
	// RE2 only applies to ASCII.
	pattern, err := regexp.Compile(`(?i)^(` + strings.Join(keys, "|") + `)(?:[^\p{L}\p{N}_]|$)`)
	if err != nil {
		return nil, fmt.Errorf("compile corrections: %w", err)
	}
	return &Normalizer{table: table, pattern: pattern}, nil
}

func mustNew(extra map[string]string) *Normalizer {
	n, err := New(extra)
	if err != nil {
		panic(err)
	}
	return n
}

// Default returns the Normalizer built from the built-in table only.
func Default() *Normalizer {
	return defaultNormalizer
}

// Normalize runs the default Normalizer.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// Normalize strips control characters, collapses whitespace, removes stray
// spaces before punctuation and applies the correction table to whole words.
// Normalize(Normalize(s)) == Normalize(s).
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = controlChars.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return n.correct(text)
}

// correct replaces table words that start and end on a Unicode word
// boundary.
func (n *Normalizer) correct(text string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		if i > 0 {
			if prev, _ := utf8.DecodeLastRuneInString(text[:i]); !isNotWordRune(prev) {
				i += size
				continue
			}
		}
		loc := n.pattern.FindStringSubmatchIndex(text[i:])
		if loc == nil {
			i += size
			continue
		}
		start, end := i+loc[2], i+loc[3]
		word := text[start:end]
		replacement, ok := n.table[strings.ToLower(word)]
		if !ok {
			i += size
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(matchCase(word, replacement))
		last, i = end, end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// Corrections returns a copy of the active table.
func (n *Normalizer) Corrections() map[string]string {
	out := make(map[string]string, len(n.table))
	for k, v := range n.table {
		out[k] = v
	}
	return out
}

// matchCase carries the casing of the typed word onto the replacement:
// ALL CAPS stays upper, a leading capital stays capitalised.
func matchCase(original, replacement string) string {
	if isUpperWord(original) {
		return strings.ToUpper(replacement)
	}
	first, _ := utf8.DecodeRuneInString(original)
	if unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(replacement)
		return string(unicode.ToUpper(r)) + replacement[size:]
	}
	return replacement
}

func isUpperWord(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 1
}

func isNotWordRune(r rune) bool {
	return !(r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r))
}

// LoadCorrections decodes a YAML mapping of misspelling to replacement.
func LoadCorrections(r io.Reader) (map[string]string, error) {
	var table map[string]string
	if err := yaml.NewDecoder(r).Decode(&table); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("decode corrections: %w", err)
	}
	if table == nil {
		table = map[string]string{}
	}
	return table, nil
}

// LoadCorrectionsFile reads LoadCorrections input from path.
func LoadCorrectionsFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCorrections(f)
}
