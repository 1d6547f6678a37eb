package invitation

import (
	"fmt"
	"sync"
)

// DefaultIDPrefix prefixes synthetic user ids.
const DefaultIDPrefix = "synthetic-user-"

// IDSequence hands out sequential user ids of the form <prefix><n>. Each
// simulator owns its own sequence, so independent simulations never share
// a counter.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewIDSequence returns a sequence whose first id uses start. An empty
// prefix uses DefaultIDPrefix.
func NewIDSequence(prefix string, start int) *IDSequence {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &IDSequence{prefix: prefix, next: start}
}

// Next returns the next id and advances the counter.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%s%d", s.prefix, s.next)
	s.next++
	return id
}

// Peek returns the number the next id will carry.
func (s *IDSequence) Peek() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reset restarts the counter at start.
func (s *IDSequence) Reset(start int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = start
}

// Prefix returns the id prefix.
func (s *IDSequence) Prefix() string {
	return s.prefix
}
