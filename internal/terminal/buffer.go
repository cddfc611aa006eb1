package terminal

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

// ErrBufferClosed is returned by Write once the buffer has been closed.
var ErrBufferClosed = errors.New("buffer closed")

// Buffer is a thread-safe bounded ring buffer for terminal output. When it is
// full, Write blocks until a reader frees space or the buffer is closed, so
// output is never overwritten before it is read.
type Buffer struct {
	data   []byte
	size   int
	head   int
	count  int
	closed bool
	ready  chan struct{}
	mu     sync.Mutex
	space  *sync.Cond
}

// NewBuffer creates a new ring buffer. The size is raised to hold at least
// one complete rune so ReadComplete always makes progress.
func NewBuffer(size int) *Buffer {
	if size < utf8.UTFMax {
		size = utf8.UTFMax
	}
	b := &Buffer{
		data:  make([]byte, size),
		size:  size,
		ready: make(chan struct{}, 1),
	}
	b.space = sync.NewCond(&b.mu)
	return b
}

// Write copies p into the buffer, waiting for space as needed, and wakes a
// waiting reader after each chunk.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		for b.count == b.size && !b.closed {
			b.space.Wait()
		}
		if b.closed {
			return written, ErrBufferClosed
		}

		tail := (b.head + b.count) % b.size
		end := b.size
		if tail < b.head {
			end = b.head
		}
		n := copy(b.data[tail:end], p[written:])
		b.count += n
		written += n
		b.notify()
	}
	return written, nil
}

// Close wakes a blocked writer. Buffered bytes stay readable.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.space.Broadcast()
}

// Ready receives a value after writes that happened since it last fired.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// ReadAll removes and returns everything buffered.
func (b *Buffer) ReadAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := b.peekLocked()
	b.consumeLocked(len(result))
	return result
}

// ReadComplete removes and returns the buffered bytes up to the last complete
// UTF-8 sequence. An incomplete trailing sequence stays buffered.
func (b *Buffer) ReadComplete() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := b.peekLocked()
	n := wire.CompleteLen(result)
	b.consumeLocked(n)
	return result[:n]
}

// notify must be called with mu held.
func (b *Buffer) notify() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// consumeLocked must be called with mu held.
func (b *Buffer) consumeLocked(n int) {
	if n == 0 {
		return
	}
	b.head = (b.head + n) % b.size
	b.count -= n
	b.space.Broadcast()
}

func (b *Buffer) peekLocked() []byte {
	result := make([]byte, b.count)
	n := copy(result, b.data[b.head:min(b.head+b.count, b.size)])
	copy(result[n:], b.data[:b.count-n])
	return result
}
