package resolver

import (
	"strings"
	"sync"
)

// Session memoizes resolutions for one import. It is safe for concurrent
// use and must not be shared between imports.
type Session struct {
	mu     sync.Mutex
	memo   map[string]*Printing
	hits   int
	misses int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{memo: make(map[string]*Printing)}
}

// Key returns the memo key for a query.
func Key(q Query) string {
	set := normalizeName(q.Set)
	if set == "" {
		set = "any"
	}
	key := normalizeName(q.Name) + "|" + set
	if n := strings.TrimSpace(q.CollectorNumber); n != "" {
		key += "#" + strings.ToLower(n)
	}
	return key
}

// lookup returns the memoized printing for key. A nil printing with ok
// set is a remembered miss.
func (s *Session) lookup(key string) (p *Printing, ok bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok = s.memo[key]
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return p, ok
}

func (s *Session) store(key string, p *Printing) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.memo[key] = p
	s.mu.Unlock()
}

// Stats returns memo hits and misses so far.
func (s *Session) Stats() (hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}
