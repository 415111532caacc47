package scanner

import (
	"bufio"
	"io"
	"path"
	"strings"
)

// Rule is one gitignore-style line of an ignore file.
type Rule struct {
	negate   bool     // line started with !
	dirOnly  bool     // line ended with /
	anchored bool     // pattern contains a slash before its last segment
	parts    []string // slash-separated pattern segments, ** allowed
}

// ParseRule parses one ignore-file line. Blank lines and comments yield
// ok == false.
func ParseRule(line string) (r Rule, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false
	}

	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	} else if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return Rule{}, false
	}

	r.parts = strings.Split(line, "/")
	return r, true
}

// Negated reports whether the rule re-includes what it matches.
func (r Rule) Negated() bool {
	return r.negate
}

// Match reports whether rel, a slash-separated path relative to the
// ignore file's directory, is matched. Unanchored rules match at any
// depth; anchored ones only from the start.
func (r Rule) Match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	segs := strings.Split(rel, "/")
	if r.anchored {
		return matchParts(r.parts, segs)
	}
	for i := range segs {
		if matchParts(r.parts, segs[i:]) {
			return true
		}
	}
	return false
}

func matchParts(parts, segs []string) bool {
	if len(parts) == 0 {
		return len(segs) == 0
	}
	if parts[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchParts(parts[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(parts[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchParts(parts[1:], segs[1:])
}

// Rules is an ordered rule list; later rules override earlier ones.
type Rules []Rule

// ParseRules reads an ignore file.
func ParseRules(r io.Reader) (Rules, error) {
	var rules Rules
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if rule, ok := ParseRule(sc.Text()); ok {
			rules = append(rules, rule)
		}
	}
	return rules, sc.Err()
}

// Ignored applies gitignore precedence: the last matching rule wins.
func (rs Rules) Ignored(rel string, isDir bool) bool {
	ignored := false
	for _, r := range rs {
		if r.Match(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}
