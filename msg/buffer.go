package msg

import (
	"fmt"
	"sync"

	cmnatomic "github.com/ten-framework/ten-runtime-go/cmn/atomic"
)

// payload is the shared, refcounted buffer backing Data/AudioFrame/
// VideoFrame messages. "refcount 0 ⇒ no live tokens" (spec.md §9) is
// enforced by requiring every outstanding lock to hold a reference via
// acquire()/release() pairing, same as transport.Obj's prc refcount
// guards against double-firing ObjSentCB.
type payload struct {
	mu        sync.Mutex
	data      []byte
	refcount  cmnatomic.Int64
	locks     map[int]lockRange
	nextToken int
	reclaimed bool
}

type lockRange struct {
	offset, length int
}

func (r lockRange) overlaps(o lockRange) bool {
	return r.offset < o.offset+o.length && o.offset < r.offset+r.length
}

func newPayload(size int) *payload {
	p := &payload{data: make([]byte, size), locks: make(map[int]lockRange)}
	p.refcount.Store(1)
	return p
}

func (p *payload) acquire() { p.refcount.Inc() }

func (p *payload) release() {
	if p.refcount.Dec() == 0 {
		p.mu.Lock()
		if len(p.locks) == 0 {
			p.reclaimed = true
			p.data = nil
		}
		p.mu.Unlock()
	}
}

// AllocBuf allocates a fresh buffer payload for this message (spec.md
// §4.1). It is only meaningful on Data/AudioFrame/VideoFrame messages.
func (m *Msg) AllocBuf(size int) error {
	if m.Kind != KindData && m.Kind != KindAudioFrame && m.Kind != KindVideoFrame {
		return fmt.Errorf("msg: AllocBuf on non-frame message kind %s", m.Kind)
	}
	m.buf = newPayload(size)
	return nil
}

// BufLock is the token returned by LockBuf; UnlockBuf requires the exact
// token back, matching "unlock_buf fails if the pointer does not match a
// live lock" (spec.md §4.1).
type BufLock struct {
	token int
	owner *payload
}

// LockBuf checks out [offset, offset+length) for direct mutation. It
// fails if the buffer has been reclaimed, the range is out of bounds, or
// it overlaps an already-outstanding lock.
func (m *Msg) LockBuf(offset, length int) ([]byte, BufLock, error) {
	if m.buf == nil {
		return nil, BufLock{}, fmt.Errorf("msg: no buffer allocated")
	}
	p := m.buf
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reclaimed {
		return nil, BufLock{}, fmt.Errorf("msg: buffer already reclaimed")
	}
	if offset < 0 || length < 0 || offset+length > len(p.data) {
		return nil, BufLock{}, fmt.Errorf("msg: lock range out of bounds")
	}
	want := lockRange{offset, length}
	for _, existing := range p.locks {
		if existing.overlaps(want) {
			return nil, BufLock{}, fmt.Errorf("msg: overlapping lock already held")
		}
	}
	p.acquire()
	token := p.nextToken
	p.nextToken++
	p.locks[token] = want
	return p.data[offset : offset+length], BufLock{token: token, owner: p}, nil
}

// UnlockBuf releases a previously acquired lock. It is an error to pass a
// token that doesn't correspond to a currently-held lock on this buffer.
func (m *Msg) UnlockBuf(tok BufLock) error {
	if m.buf == nil || tok.owner != m.buf {
		return fmt.Errorf("msg: unlock token does not belong to this buffer")
	}
	p := m.buf
	p.mu.Lock()
	if _, ok := p.locks[tok.token]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("msg: unlock token is not a live lock")
	}
	delete(p.locks, tok.token)
	p.mu.Unlock()
	p.release() // undoes the acquire() LockBuf performed; may trigger reclaim
	return nil
}

// GetBufCopy returns an independent copy of the whole buffer.
func (m *Msg) GetBufCopy() ([]byte, error) {
	if m.buf == nil {
		return nil, fmt.Errorf("msg: no buffer allocated")
	}
	p := m.buf
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reclaimed {
		return nil, fmt.Errorf("msg: buffer already reclaimed")
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out, nil
}

func (m *Msg) BufLen() int {
	if m.buf == nil {
		return 0
	}
	return len(m.buf.data)
}
