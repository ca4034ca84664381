// Package regexcache compiles each pattern once and shares the result.
// Checks match the same indicator patterns against every response they
// read; the cache keeps that off the hot path.
//
// Usage:
//
//	slugs := regexcache.AllGroups(`/wp-content/plugins/([a-z0-9_-]+)/`, body)
package regexcache

import (
	"regexp"
	"sync"
)

var cache sync.Map // pattern -> *regexp.Regexp

// Get returns the compiled pattern, compiling and caching it on first use.
func Get(pattern string) (*regexp.Regexp, error) {
	if v, ok := cache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v, _ := cache.LoadOrStore(pattern, re)
	return v.(*regexp.Regexp), nil
}

// MustGet is Get for patterns known at compile time. It panics on an
// invalid pattern.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// Group returns the first capture group of the first match of pattern in s.
func Group(pattern, s string) (string, bool) {
	m := MustGet(pattern).FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// AllGroups returns the first capture group of every match of pattern in s.
func AllGroups(pattern, s string) []string {
	matches := MustGet(pattern).FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

// Size returns the number of cached patterns.
func Size() int {
	n := 0
	cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
