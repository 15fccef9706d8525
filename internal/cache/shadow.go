package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultShadowSize is the number of decoded payloads kept in process memory.
const DefaultShadowSize = 128

// Shadow keeps decoded payloads of recently seen entries, keyed by entry id.
// Entries are immutable once written, so a shadow hit is always the payload
// the store holds for that id. Freshness is still decided by the store.
// A nil *Shadow is valid and disables the shadow.
type Shadow struct {
	entries *lru.Cache[string, any]
}

// NewShadow returns a shadow holding at most size payloads.
func NewShadow(size int) (*Shadow, error) {
	if size <= 0 {
		size = DefaultShadowSize
	}
	c, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return &Shadow{entries: c}, nil
}

func (s *Shadow) get(id string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return s.entries.Get(id)
}

func (s *Shadow) add(id string, v any) {
	if s == nil {
		return
	}
	s.entries.Add(id, v)
}

// Len returns the number of shadowed payloads.
func (s *Shadow) Len() int {
	if s == nil {
		return 0
	}
	return s.entries.Len()
}

// Purge drops every shadowed payload.
func (s *Shadow) Purge() {
	if s == nil {
		return
	}
	s.entries.Purge()
}
