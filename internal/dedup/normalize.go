// Package dedup cleans raw OCR text and suppresses repeats of lines already seen
// in the current session, including near-duplicates caused by recognition noise.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
)

// FixRule is a literal correction for a known recognition error.
type FixRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Config holds the filter, fix-rule and dedup tunables.
type Config struct {
	MinLength           int       `yaml:"min_length"`
	MaxLength           int       `yaml:"max_length"`
	MinLetterRatio      float64   `yaml:"min_letter_ratio"`
	MaxDigitRatio       float64   `yaml:"max_digit_ratio"`
	MaxSymbolRatio      float64   `yaml:"max_symbol_ratio"`
	SimilarityThreshold float64   `yaml:"similarity_threshold"`
	FixRules            []FixRule `yaml:"fix_rules"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MinLength:           3,
		MaxLength:           500,
		MinLetterRatio:      0.40,
		MaxDigitRatio:       0.30,
		MaxSymbolRatio:      0.30,
		SimilarityThreshold: 0.80,
		FixRules: []FixRule{
			{Pattern: "VV", Replacement: "W"},
			{Pattern: "|", Replacement: "I"},
		},
	}
}

// CheckGarbage rejects text that is too short, too long, or whose non-whitespace
// characters are mostly digits or symbols. The error carries CodeOCRGarbage.
func CheckGarbage(text string, cfg Config) error {
	trimmed := strings.TrimSpace(text)
	n := len([]rune(trimmed))
	if n < cfg.MinLength {
		return apperrors.Newf(apperrors.CodeOCRGarbage, "too short (%d runes)", n)
	}
	if cfg.MaxLength > 0 && n > cfg.MaxLength {
		return apperrors.Newf(apperrors.CodeOCRGarbage, "too long (%d runes)", n)
	}

	var letters, digits, symbols, total int
	for _, r := range trimmed {
		switch {
		case unicode.IsSpace(r):
			continue
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		default:
			symbols++
		}
		total++
	}
	if total == 0 {
		return apperrors.New(apperrors.CodeOCRGarbage, "no visible characters")
	}

	ratio := func(v int) float64 { return float64(v) / float64(total) }
	switch {
	case ratio(letters) < cfg.MinLetterRatio:
		return apperrors.Newf(apperrors.CodeOCRGarbage, "letter density %.2f", ratio(letters))
	case ratio(digits) > cfg.MaxDigitRatio:
		return apperrors.Newf(apperrors.CodeOCRGarbage, "digit density %.2f", ratio(digits))
	case ratio(symbols) > cfg.MaxSymbolRatio:
		return apperrors.Newf(apperrors.CodeOCRGarbage, "symbol density %.2f", ratio(symbols))
	}
	return nil
}

// ApplyFixRules replaces every occurrence of each pattern, in declaration order.
func ApplyFixRules(text string, rules []FixRule) string {
	for _, r := range rules {
		if r.Pattern == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.Pattern, r.Replacement)
	}
	return text
}

var punctuation = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'", "`", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "«", `"`, "»", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	"…", "...",
)

// Normalize applies NFKC, folds quote, dash and ellipsis variants to ASCII, and
// collapses whitespace.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = punctuation.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// StableID is a deterministic identifier for a normalized line.
func StableID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
