package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
)

var errFrameTooLong = errors.New("frame exceeds maximum message size")

// StdioTransport exchanges newline-delimited messages over a reader/writer
// pair, normally the process's stdin and stdout.
type StdioTransport struct {
	reader io.Reader
	writer *bufio.Writer

	writeMu sync.Mutex

	incoming chan []byte
	readErr  error // set before incoming is closed

	group    *errgroup.Group
	done     chan struct{}
	stopOnce sync.Once
	maxSize  int
	logger   logging.Logger
}

// StdioOption configures a StdioTransport
type StdioOption func(*StdioTransport)

// WithMaxMessageSize bounds the size of one inbound line. A longer line is
// read to its end and discarded; the transport stays open. The peer gets no
// reply for a discarded request since its id is never decoded.
func WithMaxMessageSize(n int) StdioOption {
	return func(t *StdioTransport) {
		if n > 0 {
			t.maxSize = n
		}
	}
}

// WithStdioLogger reports discarded lines
func WithStdioLogger(logger logging.Logger) StdioOption {
	return func(t *StdioTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewStdioTransport creates a transport over r and w. Nil arguments select
// os.Stdin and os.Stdout. Reading starts immediately.
func NewStdioTransport(r io.Reader, w io.Writer, opts ...StdioOption) *StdioTransport {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	t := &StdioTransport{
		reader:   r,
		writer:   bufio.NewWriter(w),
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
		maxSize:  DefaultMaxMessageSize,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start()
	return t
}

func (t *StdioTransport) start() {
	g := new(errgroup.Group)
	readerDone := make(chan struct{})

	g.Go(func() error {
		defer close(readerDone)
		defer close(t.incoming)

		br := bufio.NewReaderSize(t.reader, 64*1024)
		for {
			frame, err := readFrame(br, t.maxSize)
			if errors.Is(err, errFrameTooLong) {
				t.logger.Warn("discarding oversized message", logging.Int("limit", t.maxSize))
				continue
			}
			if err != nil {
				select {
				case <-t.done:
					t.readErr = io.EOF
					return nil
				default:
				}
				if errors.Is(err, io.EOF) {
					t.readErr = io.EOF
					return nil
				}
				t.readErr = mcperrors.TransportError("stdio", "receive", err).
					WithContext(&mcperrors.Context{Component: "StdioTransport", Operation: "read_input"})
				return t.readErr
			}

			line := bytes.TrimSpace(frame)
			if len(line) == 0 {
				continue
			}
			select {
			case t.incoming <- line:
			case <-t.done:
				t.readErr = io.EOF
				return nil
			}
		}
	})

	// Closing the reader is the only way to unblock a pending read.
	g.Go(func() error {
		select {
		case <-t.done:
			if closer, ok := t.reader.(io.Closer); ok {
				_ = closer.Close()
			}
		case <-readerDone:
		}
		return nil
	})

	t.group = g
}

// readFrame returns the next line in memory it owns. A line longer than
// maxSize is consumed without being buffered and yields errFrameTooLong.
// A final line without a terminator is returned before io.EOF.
func readFrame(r *bufio.Reader, maxSize int) ([]byte, error) {
	var frame []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			frame = append(frame, chunk...)
			// room for a CRLF terminator
			if len(frame) > maxSize+2 {
				tooLong = true
				frame = nil
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
			if tooLong || len(bytes.TrimRight(frame, "\r\n")) > maxSize {
				return nil, errFrameTooLong
			}
			return frame, nil
		case errors.Is(err, io.EOF) && tooLong:
			return nil, errFrameTooLong
		case errors.Is(err, io.EOF) && len(frame) > 0:
			if len(frame) > maxSize {
				return nil, errFrameTooLong
			}
			return frame, nil
		default:
			return nil, err
		}
	}
}

// Receive returns the next inbound message
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-t.incoming:
		if !ok {
			return nil, t.readErr
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes data followed by a newline. Messages must not contain raw
// newlines.
func (t *StdioTransport) Send(ctx context.Context, data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return mcperrors.TransportError("stdio", "send", fmt.Errorf("message contains a newline"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return mcperrors.TransportClosed("stdio")
	default:
	}

	if _, err := t.writer.Write(data); err != nil {
		return mcperrors.TransportError("stdio", "send", err).
			WithContext(&mcperrors.Context{Component: "StdioTransport", Operation: "write_data"})
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return mcperrors.TransportError("stdio", "send", err).
			WithContext(&mcperrors.Context{Component: "StdioTransport", Operation: "write_newline"})
	}
	if err := t.writer.Flush(); err != nil {
		return mcperrors.TransportError("stdio", "send", err).
			WithContext(&mcperrors.Context{Component: "StdioTransport", Operation: "flush_output"})
	}
	return nil
}

// Close stops reading, flushes pending output and waits for the reader
// goroutines to exit. If the reader is not an io.Closer, Close returns once
// the next line or EOF arrives.
func (t *StdioTransport) Close() error {
	var flushErr error
	t.stopOnce.Do(func() {
		t.writeMu.Lock()
		close(t.done)
		flushErr = t.writer.Flush()
		t.writeMu.Unlock()

		_ = t.group.Wait()
	})
	if flushErr != nil {
		return mcperrors.TransportError("stdio", "close", flushErr).
			WithContext(&mcperrors.Context{Component: "StdioTransport", Operation: "flush_on_stop"})
	}
	return nil
}
