package common

import (
	"regexp"
	"strings"
	"sync"
)

// URL helpers shared by discovery, dedup and the local store.

var (
	patternCacheMu sync.RWMutex
	patternCache   = map[string]*regexp.Regexp{}
)

// CompileURLPattern converts a glob-style site pattern ('*' wildcards) into
// a regexp anchored over the whole URL. Compiled patterns are cached; the
// same handful of site patterns is matched against thousands of URLs.
func CompileURLPattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			sb.WriteString(".*")
		}
		sb.WriteString(regexp.QuoteMeta(part))
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}

	patternCacheMu.Lock()
	patternCache[pattern] = re
	patternCacheMu.Unlock()
	return re, nil
}

// MatchesURLPattern reports whether rawURL matches the glob pattern. An
// empty pattern accepts every URL; a pattern that fails to compile accepts
// none.
func MatchesURLPattern(pattern, rawURL string) bool {
	if pattern == "" {
		return true
	}
	re, err := CompileURLPattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(rawURL)
}

// FilterURLsByPattern returns the URLs matching the glob pattern, order
// preserved. An empty pattern returns the input unchanged.
func FilterURLsByPattern(urls []string, pattern string) []string {
	if pattern == "" {
		return urls
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if MatchesURLPattern(pattern, u) {
			out = append(out, u)
		}
	}
	return out
}

// JoinPath safely joins path segments, preventing duplicate slashes
func JoinPath(segments ...string) string {
	result := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if result == "" {
			result = seg
		} else if result[len(result)-1] == '/' {
			if seg[0] == '/' {
				result += seg[1:]
			} else {
				result += seg
			}
		} else {
			if seg[0] == '/' {
				result += seg
			} else {
				result += "/" + seg
			}
		}
	}
	return result
}
