package parser

import deadlock "github.com/sasha-s/go-deadlock"

// scope implements the Branching Seed of spec §4.2: local and
// function-scoped variables copied into a child as a read-only seed.
// Writes always land in the child's own local map, never mutating the
// seed, so "subsequent mutation in child of those names creates new
// child-local bindings; the parent is unaffected" holds without any
// copy-on-write bookkeeping beyond a layered lookup.
type scope struct {
	mu    deadlock.Mutex
	seed  map[string]string
	local map[string]string
}

func newRootScope() *scope {
	return &scope{local: make(map[string]string)}
}

func (s *scope) get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.local[name]; ok {
		return v, true
	}
	v, ok := s.seed[name]
	return v, ok
}

func (s *scope) set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[name] = value
}

// names returns the union of seed and local variable names, for `set -l`-style introspection.
func (s *scope) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.seed)+len(s.local))
	out := make([]string, 0, len(s.seed)+len(s.local))
	for k := range s.local {
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k := range s.seed {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// seedForChild flattens local-over-seed into a single read-only map for
// a freshly branched child (spec §4.2: "copies parent's local and
// function-scoped variables as read-only seeds").
func (s *scope) seedForChild() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]string, len(s.seed)+len(s.local))
	for k, v := range s.seed {
		merged[k] = v
	}
	for k, v := range s.local {
		merged[k] = v
	}
	return merged
}
