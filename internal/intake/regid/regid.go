// Package regid renders and parses canonical registration identifiers.
//
// The canonical shape is {PREFIX}{YYYY}{BATCHCODE}{NNNN}:
//
//	PPDB 2025 GEL01 0007  ->  "PPDB2025GEL010007"
//
// PREFIX is a fixed tenant-agnostic literal, YYYY the 4-digit cycle year,
// BATCHCODE three uppercase letters plus a 2-digit batch ordinal, NNNN a
// 4-digit zero-padded sequence. Past 9999 the sequence field widens; it
// never wraps. Parse is the exact inverse of Format, which is what lets
// the sequence allocator reconstruct the highest issued value from
// persisted identifiers.
package regid

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	dErrors "ppdb/pkg/domain-errors"
)

// DefaultPrefix is the platform-wide registration id prefix.
const DefaultPrefix = "PPDB"

// batchCodeLetters is the literal part of every batch code.
const batchCodeLetters = "GEL"

const sequenceWidth = 4

// Components is the parsed form of a registration identifier.
type Components struct {
	CycleYear int
	BatchCode string
	Sequence  int
}

// Formatter formats and parses identifiers under one prefix.
type Formatter struct {
	prefix string
}

// New returns a Formatter. An empty prefix selects DefaultPrefix.
func New(prefix string) *Formatter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Formatter{prefix: prefix}
}

// Prefix returns the configured prefix literal.
func (f *Formatter) Prefix() string { return f.prefix }

// BatchCode derives the canonical batch code from a human batch label by
// extracting its trailing digits: "Gelombang 2" -> "GEL02". Labels without
// trailing digits are rejected rather than guessed at.
func BatchCode(label string) (string, error) {
	trimmed := strings.TrimRightFunc(label, unicode.IsSpace)
	i := len(trimmed)
	for i > 0 && trimmed[i-1] >= '0' && trimmed[i-1] <= '9' {
		i--
	}
	digits := trimmed[i:]
	if digits == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput,
			"batch label %q has no trailing ordinal", label)
	}
	ordinal, err := strconv.Atoi(digits)
	if err != nil || ordinal < 1 || ordinal > 99 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput,
			"batch ordinal %q must be between 1 and 99", digits)
	}
	return fmt.Sprintf("%s%02d", batchCodeLetters, ordinal), nil
}

// Format renders the canonical identifier. Sequences above 9999 widen the
// field instead of wrapping.
func (f *Formatter) Format(cycleYear int, batchCode string, sequence int) string {
	return fmt.Sprintf("%s%04d%s%0*d", f.prefix, cycleYear, batchCode, sequenceWidth, sequence)
}

// Parse is the exact inverse of Format. Malformed input fails explicitly;
// nothing is silently truncated.
func (f *Formatter) Parse(s string) (Components, error) {
	rest, ok := strings.CutPrefix(s, f.prefix)
	if !ok {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q does not start with prefix %s", s, f.prefix)
	}

	if len(rest) < 4 {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q is truncated before the cycle year", s)
	}
	year, err := strconv.Atoi(rest[:4])
	if err != nil {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q has a non-numeric cycle year", s)
	}
	rest = rest[4:]

	// Batch code: a run of uppercase letters followed by exactly two digits.
	letters := 0
	for letters < len(rest) && rest[letters] >= 'A' && rest[letters] <= 'Z' {
		letters++
	}
	if letters == 0 {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q is missing the batch code", s)
	}
	if len(rest) < letters+2 || !isDigits(rest[letters:letters+2]) {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q is missing the batch ordinal", s)
	}
	batchCode := rest[:letters+2]
	rest = rest[letters+2:]

	if len(rest) < sequenceWidth || !isDigits(rest) {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q has a malformed sequence field", s)
	}
	// A widened field (>9999) never carries leading zeros.
	if len(rest) > sequenceWidth && rest[0] == '0' {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q has a zero-padded widened sequence", s)
	}
	seq, err := strconv.Atoi(rest)
	if err != nil {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q has a malformed sequence field", s)
	}
	if seq < 1 {
		return Components{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"registration id %q has a zero sequence", s)
	}

	return Components{CycleYear: year, BatchCode: batchCode, Sequence: seq}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
