// Package version compares dotted numeric version strings and tests them
// against vulnerable-range expressions.
//
// Versions are compared as tuples of integers split on ".". Missing trailing
// components count as 0, so "1.0" and "1.0.0" are equal. Each component
// contributes only its leading digits ("3-beta" reads as 3), which keeps the
// order total for every input.
//
// Range matching is deliberately narrow. Only three shapes are understood:
//
//	< X
//	<= X
//	>= X < Y     (also ">= X, < Y")
//
// Anything else never matches. Broadening this would turn unknown range
// syntax into override proposals the project did not need.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func Compare(a, b string) int {
	pa, pb := parts(a), parts(b)
	n := max(len(pa), len(pb))
	for i := range n {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// IsNewer reports whether candidate is strictly greater than current.
func IsNewer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}

// Clean strips range prefixes (^, ~, =, v) and surrounding whitespace from a
// declared dependency version.
func Clean(v string) string {
	return strings.TrimLeft(strings.TrimSpace(v), "^~=v ")
}

func parts(v string) []int {
	v = Clean(v)
	if v == "" {
		return nil
	}
	fields := strings.Split(v, ".")
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i] = leadingInt(f)
	}
	return out
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

var (
	ltPattern      = regexp.MustCompile(`^<\s*([0-9][^\s,<>=]*)$`)
	ltePattern     = regexp.MustCompile(`^<=\s*([0-9][^\s,<>=]*)$`)
	betweenPattern = regexp.MustCompile(`^>=\s*([0-9][^\s,<>=]*)\s*,?\s*<\s*([0-9][^\s,<>=]*)$`)
)

// IsVulnerable reports whether the declared version falls inside rng.
// The declared version may carry a ^ or ~ prefix; it is stripped first.
func IsVulnerable(declared, rng string) bool {
	v := Clean(declared)
	if v == "" {
		return false
	}
	r := strings.TrimSpace(rng)

	if m := ltePattern.FindStringSubmatch(r); m != nil {
		return Compare(v, m[1]) <= 0
	}
	if m := ltPattern.FindStringSubmatch(r); m != nil {
		return Compare(v, m[1]) < 0
	}
	if m := betweenPattern.FindStringSubmatch(r); m != nil {
		return Compare(v, m[1]) >= 0 && Compare(v, m[2]) < 0
	}
	return false
}

// Range formats the vulnerable range for an introduced/fixed pair the way
// IsVulnerable understands it. An empty or "0" introduced version yields
// "< fixed"; an empty fixed version yields "" (no matchable range).
func Range(introduced, fixed string) string {
	if fixed == "" {
		return ""
	}
	if introduced == "" || introduced == "0" {
		return "< " + fixed
	}
	return ">= " + introduced + " < " + fixed
}
