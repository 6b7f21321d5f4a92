package triage

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Flag is a derived alert code computed from vitals against fixed
// thresholds. The set is closed but extensible: adding a flag means
// adding a constant and a rule in Evaluate.
type Flag string

const (
	// FlagTachycardia fires when the heart rate exceeds 110 bpm.
	FlagTachycardia Flag = "tachycardia"

	// FlagHypertension fires when the systolic pressure is 140 mmHg or more.
	FlagHypertension Flag = "hypertension"
)

const (
	tachycardiaBPM   = 110 // strictly greater than
	hypertensionMmHg = 140 // greater or equal
)

// pressure strings arrive as free text ("155/98", "155 / 98", "155").
// Digit groups of 2-3 characters are the systolic/diastolic readings;
// anything else is noise.
var pressureGroups = regexp.MustCompile(`\d{2,3}`)

// heart rate is free text too; the reading is the leading integer, so
// "128bpm" counts as 128 and "bpm128" as nothing.
var heartRateLeading = regexp.MustCompile(`^[+-]?\d+`)

// FlagSet is an unordered set of derived flags.
type FlagSet map[Flag]struct{}

// Has reports whether f is in the set.
func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the flags in lexical order, for stable JSON output.
func (s FlagSet) Sorted() []Flag {
	out := make([]Flag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Evaluate derives the flag set for a vitals capture. It is pure and
// total: missing or malformed fields contribute no flags and never
// produce an error.
func Evaluate(v Vitals) FlagSet {
	flags := make(FlagSet)

	if m := heartRateLeading.FindString(strings.TrimSpace(v.HeartRate)); m != "" {
		if bpm, err := strconv.Atoi(m); err == nil && bpm > tachycardiaBPM {
			flags[FlagTachycardia] = struct{}{}
		}
	}

	press := strings.ReplaceAll(v.Pressure, " ", "")
	if groups := pressureGroups.FindAllString(press, -1); len(groups) > 0 {
		if systolic, err := strconv.Atoi(groups[0]); err == nil && systolic >= hypertensionMmHg {
			flags[FlagHypertension] = struct{}{}
		}
	}

	return flags
}

// CommonFlags returns the flags that occur in more than one of the given
// records (strict >1), derived fresh from each record's vitals. The result
// is sorted for deterministic output; set semantics otherwise.
func CommonFlags(records []*Record) []Flag {
	counts := make(map[Flag]int)
	for _, r := range records {
		for f := range Evaluate(r.Vitals) {
			counts[f]++
		}
	}

	var out []Flag
	for f, n := range counts {
		if n > 1 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
