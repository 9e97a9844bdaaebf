package jade

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Connection is the bidirectional byte stream a Client drives, per spec
// §4.J: "a bidirectional byte stream (TCP, Bluetooth, USB-serial, or
// WebSocket — all equivalent at this layer)." Any io.ReadWriter qualifies;
// net.Conn, a serial port, or the in-process Emulator all satisfy it
// unchanged.
type Connection interface {
	io.Reader
	io.Writer
}

// readFrameSize is the chunk size each buffering read grows the response
// buffer by, chosen to hold a typical CBOR response in one read while
// still exercising the multi-read retry path for larger ones.
const readFrameSize = 512

// readResponse implements spec §4.J's framing contract: buffer partial
// reads and attempt a CBOR decode after each chunk; keep buffering while
// decoding fails with an unexpected/truncated input, and treat any other
// decode failure as terminal for this exchange. Grounded on
// original_source/jade/src/lib.rs's send_request read loop, generalized
// from its ad hoc retry-forever shape into an explicit truncated-vs-fatal
// distinction and a context-cancellable blocking read.
func readResponse(ctx context.Context, conn Connection) (*Response, error) {
	type result struct {
		n   int
		err error
	}

	buf := make([]byte, 0, readFrameSize)
	for {
		chunk := make([]byte, readFrameSize)
		readCh := make(chan result, 1)
		go func() {
			n, err := conn.Read(chunk)
			readCh <- result{n, err}
		}()

		var res result
		select {
		case <-ctx.Done():
			return nil, Timeout()
		case res = <-readCh:
		}

		if res.n > 0 {
			buf = append(buf, chunk[:res.n]...)

			var resp Response
			decErr := cbor.Unmarshal(buf, &resp)
			if decErr == nil {
				return &resp, nil
			}
			if isTruncated(decErr) {
				continue
			}
			return nil, fmt.Errorf("jade: decode response: %w", decErr)
		}
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil, fmt.Errorf("jade: connection closed: %w", res.err)
			}
			return nil, res.err
		}
	}
}

// isTruncated reports whether a CBOR decode error was caused by the
// buffer not yet holding a complete item, as opposed to genuinely
// malformed input.
func isTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
