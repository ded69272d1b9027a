package frontend

import (
	"io"
	"sync"
)

// pipeAdapter turns the backend's push-style ProcessData delivery into an
// io.ReadWriteCloser a framing library (gorilla/websocket) can block on.
// Feed is called from ProcessData with newly arrived bytes; Read blocks
// until Feed supplies something or Close unblocks it. Write is routed back
// to the connection through writeFn.
type pipeAdapter struct {
	writeFn func([]byte) error

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPipeAdapter(writeFn func([]byte) error) *pipeAdapter {
	p := &pipeAdapter{writeFn: writeFn}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed appends newly received bytes, waking any blocked Read.
func (p *pipeAdapter) Feed(data []byte) {
	p.mu.Lock()
	p.buf = append(p.buf, data...)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *pipeAdapter) Read(b []byte) (int, error) {
	p.mu.Lock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 && p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *pipeAdapter) Write(b []byte) (int, error) {
	if err := p.writeFn(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *pipeAdapter) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
