package negotiate

import (
	"sync"
	"sync/atomic"
)

// DefaultMemoSize bounds the number of distinct header values a Memo keeps.
const DefaultMemoSize = 512

// Memo caches Parse results per header value. Browsers send a handful of
// distinct Accept-Encoding strings, so a small bounded table covers nearly
// all traffic. Once full, new values are parsed but not stored.
type Memo struct {
	max     int64
	entries sync.Map // string -> []Coding
	size    atomic.Int64
}

// NewMemo returns a Memo holding at most max entries. max <= 0 selects
// DefaultMemoSize.
func NewMemo(max int) *Memo {
	if max <= 0 {
		max = DefaultMemoSize
	}
	return &Memo{max: int64(max)}
}

// Parse returns the cached ranking for header, computing it on a miss.
// Callers must not modify the returned slice.
func (m *Memo) Parse(header string) []Coding {
	if m == nil {
		return Parse(header)
	}
	if v, ok := m.entries.Load(header); ok {
		return v.([]Coding)
	}
	cs := Parse(header)
	if m.size.Load() < m.max {
		if _, loaded := m.entries.LoadOrStore(header, cs); !loaded {
			m.size.Add(1)
		}
	}
	return cs
}

// Len reports the number of cached header values.
func (m *Memo) Len() int {
	return int(m.size.Load())
}
