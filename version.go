package descriptor

import (
	"regexp"
	"strconv"
	"strings"
)

var versionPatternRe = regexp.MustCompile(`^v([0-9]+|x)(\.([0-9]+|x)){2,}$`)

type versionTree map[int]versionTree

// MatchVersionPattern picks the version from versions that best matches
// pattern. Patterns have at least three components, each a number or x:
//
//   - v1.2.3 matches v1.2.3 or a fork below it such as v1.2.3.2
//   - v1.2.x picks the highest patch of v1.2
//   - v1.x.x picks the highest v1 release
//   - v1.2.3.x always picks a fork of v1.2.3
//
// Once the pattern is exhausted the highest fork below the match wins.
// Versions not of the form vN.N.N(.N...) are ignored.
func MatchVersionPattern(versions []string, pattern string) (string, error) {
	if !versionPatternRe.MatchString(pattern) {
		return "", &ErrInvalidPattern{Pattern: pattern, Reason: "expected a form like v1.2.3, v1.2.x or v1.x.x"}
	}

	parts := strings.Split(pattern[1:], ".")
	seenX := false
	for _, p := range parts {
		if p == "x" {
			seenX = true
		} else if seenX {
			return "", &ErrInvalidPattern{Pattern: pattern, Reason: "there should be no digit after an 'x'"}
		}
	}

	tree := versionTree{}
	for _, v := range versions {
		nums, ok := parseVersion(v)
		if !ok {
			continue
		}
		node := tree
		for _, n := range nums {
			next, ok := node[n]
			if !ok {
				next = versionTree{}
				node[n] = next
			}
			node = next
		}
	}

	node := tree
	matched := make([]string, 0, len(parts))
	for _, p := range parts {
		var n int
		if p == "x" {
			if len(node) == 0 {
				return "", &ErrVersionNotFound{Pattern: pattern, Available: versions}
			}
			n = node.highest()
		} else {
			n, _ = strconv.Atoi(p)
		}
		next, ok := node[n]
		if !ok {
			return "", &ErrVersionNotFound{Pattern: pattern, Available: versions}
		}
		matched = append(matched, strconv.Itoa(n))
		node = next
	}

	for len(node) > 0 {
		n := node.highest()
		matched = append(matched, strconv.Itoa(n))
		node = node[n]
	}

	return "v" + strings.Join(matched, "."), nil
}

func (t versionTree) highest() int {
	first := true
	var max int
	for n := range t {
		if first || n > max {
			max, first = n, false
		}
	}
	return max
}

// parseVersion splits "v1.2.3(.4...)" into numbers; at least three are
// required.
func parseVersion(v string) ([]int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(v), "v")
	if !ok {
		return nil, false
	}
	fields := strings.Split(rest, ".")
	if len(fields) < 3 {
		return nil, false
	}
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, false
		}
		nums[i] = n
	}
	return nums, true
}
