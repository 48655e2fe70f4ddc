package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Options configures a Transport. Zero values pick the defaults.
type Options struct {
	Retry  RetryPolicy // Attempts defaults to 3
	Logger zerolog.Logger
}

// Transport owns a Channel and provides exact reads and a retrying
// request/reply query. Exchanges are serialized.
type Transport struct {
	ch   Channel
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// New wraps ch. Call Connect before use.
func New(ch Channel, opts Options) *Transport {
	if opts.Retry.Attempts == 0 {
		opts.Retry.Attempts = 3
	}
	return &Transport{
		ch:   ch,
		opts: opts,
		log:  opts.Logger.With().Str("component", "transport").Logger(),
	}
}

// Connect opens the channel.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	if err := t.ch.Open(); err != nil {
		return &Error{Op: "connect", Err: err}
	}
	t.connected = true
	return nil
}

// Disconnect closes the channel. It is safe to call more than once.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	if err := t.ch.Close(); err != nil {
		return &Error{Op: "disconnect", Err: err}
	}
	return nil
}

// Connected reports whether the channel is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Write sends p in full.
func (t *Transport) Write(ctx context.Context, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(ctx, p)
}

// ReadExactly reads n bytes. A read that yields nothing fails with ErrNoData,
// one that stops partway with ErrShortRead.
func (t *Transport) ReadExactly(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readExactly(ctx, n)
}

// Query writes req and reads one reply. Each attempt writes req and reads
// the first header bytes; an attempt that reads nothing is retried, so a
// request the device dropped is sent again. remaining(header) then tells how
// many bytes follow. The returned slice holds header and rest.
func (t *Transport) Query(ctx context.Context, req []byte, header int, remaining func([]byte) int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	noData := func(err error) bool { return errors.Is(err, ErrNoData) }
	attempt := 0
	head, err := Retry(ctx, t.opts.Retry, noData, func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			t.log.Debug().Int("attempt", attempt).Msg("no reply, resending request")
		}
		if err := t.write(ctx, req); err != nil {
			return nil, err
		}
		return t.readExactly(ctx, header)
	})
	if err != nil {
		return nil, err
	}

	n := remaining(head)
	if n <= 0 {
		return head, nil
	}
	rest, err := t.readExactly(ctx, n)
	if errors.Is(err, ErrNoData) {
		// The header already arrived, so silence now means a truncated reply.
		err = &Error{Op: "read", Err: fmt.Errorf("%w: reply body missing after header", ErrShortRead)}
	}
	if err != nil {
		return nil, err
	}
	return append(head, rest...), nil
}

func (t *Transport) write(ctx context.Context, p []byte) error {
	if !t.connected {
		return &Error{Op: "write", Err: ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Trace().Hex("tx", p).Msg("write")
	for len(p) > 0 {
		n, err := t.ch.Write(p)
		if err != nil {
			return &Error{Op: "write", Err: err}
		}
		if n == 0 {
			return &Error{Op: "write", Err: fmt.Errorf("channel accepted no bytes")}
		}
		p = p[n:]
	}
	return nil
}

func (t *Transport) readExactly(ctx context.Context, n int) ([]byte, error) {
	if !t.connected {
		return nil, &Error{Op: "read", Err: ErrNotConnected}
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := t.ch.Read(buf[got:])
		if err != nil {
			return nil, &Error{Op: "read", Err: fmt.Errorf("after %d/%d bytes: %w", got, n, err)}
		}
		if m == 0 {
			break
		}
		got += m
	}
	switch {
	case got == n:
		t.log.Trace().Hex("rx", buf).Msg("read")
		return buf, nil
	case got == 0:
		return nil, &Error{Op: "read", Err: ErrNoData}
	default:
		t.log.Debug().Hex("rx", buf[:got]).Int("want", n).Msg("short read")
		return nil, &Error{Op: "read", Err: fmt.Errorf("%w: got %d bytes, want %d", ErrShortRead, got, n)}
	}
}
