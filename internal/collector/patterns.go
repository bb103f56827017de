package collector

import (
	"regexp"
	"sync"
)

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// patternCache memoises regexp.Compile per pattern string, failures included.
type patternCache struct {
	mu       sync.Mutex
	compiled map[string]compiledPattern
}

func (p *patternCache) compile(pattern string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.compiled[pattern]; ok {
		return cached.re, cached.err
	}

	re, err := regexp.Compile(pattern)
	if p.compiled == nil {
		p.compiled = make(map[string]compiledPattern)
	}
	p.compiled[pattern] = compiledPattern{re: re, err: err}
	return re, err
}

// retain evicts every cached pattern that is not in patterns.
func (p *patternCache) retain(patterns []string) {
	keep := make(map[string]struct{}, len(patterns))
	for _, pattern := range patterns {
		keep[pattern] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for pattern := range p.compiled {
		if _, ok := keep[pattern]; !ok {
			delete(p.compiled, pattern)
		}
	}
}

func (p *patternCache) reset() {
	p.mu.Lock()
	p.compiled = nil
	p.mu.Unlock()
}

func (p *patternCache) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.compiled)
}
