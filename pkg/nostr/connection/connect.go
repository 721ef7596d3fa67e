// Package connection is a client side websocket carrying text frames, with
// permessage-deflate when the server agrees to it.
package connection

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

var log, chk = slog.New(os.Stderr)

// MaxMessageSize is the write buffer size; larger messages are fragmented.
const MaxMessageSize = 512000

// MaxReadSize is the default bound on one inbound message, after
// decompression.
const MaxReadSize = 4 << 20

var ErrMessageTooLarge = errors.New("message too large")

type C struct {
	Conn              net.Conn
	enableCompression bool
	controlHandler    wsutil.FrameHandlerFunc
	flateReader       *wsflate.Reader
	reader            *wsutil.Reader
	flateWriter       *wsflate.Writer
	writer            *wsutil.Writer
	// readState is only touched by the reading goroutine and writeState
	// never changes after the handshake.
	readState  *wsflate.MessageState
	writeState *wsflate.MessageState
	// ReadLimit bounds each inbound message. A message over it fails the
	// read and closes the socket.
	ReadLimit int64
}

// NewConnection dials url and completes the websocket handshake, offering
// compression. The dial is bounded by c.
func NewConnection(c context.T, url string,
	requestHeader http.Header) (connection *C, err error) {

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(requestHeader),
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
	}
	conn, br, hs, err := dialer.Dial(c, url)
	if chk.D(err) {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	enableCompression := false
	state := ws.StateClientSide
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			enableCompression = true
			state |= ws.StateExtended
			break
		}
	}
	// frames the server sent straight after the handshake may already be
	// sitting in the handshake buffer
	var source io.Reader = conn
	if br != nil {
		source = br
	}
	var flateReader *wsflate.Reader
	var readState, writeState wsflate.MessageState
	if enableCompression {
		writeState.SetCompressed(true)
		flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
	}
	controlHandler := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	reader := &wsutil.Reader{
		Source:         source,
		State:          state,
		OnIntermediate: controlHandler,
		CheckUTF8:      false,
		Extensions: []wsutil.RecvExtension{
			&readState,
		},
	}
	var flateWriter *wsflate.Writer
	if enableCompression {
		flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, e := flate.NewWriter(w, 4)
				if chk.E(e) {
					log.E.F("failed to create flate writer: %v", e)
				}
				return fw
			})
	}
	writer := wsutil.NewWriterSize(conn, state, ws.OpText, MaxMessageSize)
	writer.SetExtensions(&writeState)
	connection = &C{
		Conn:              conn,
		enableCompression: enableCompression,
		controlHandler:    controlHandler,
		flateReader:       flateReader,
		reader:            reader,
		flateWriter:       flateWriter,
		writer:            writer,
		readState:         &readState,
		writeState:        &writeState,
		ReadLimit:         MaxReadSize,
	}
	log.T.F("connected to %s compression=%v", url, enableCompression)
	return
}

// WriteMessage sends data as a single text message.
func (c *C) WriteMessage(data []byte) (err error) {
	if c.writeState.IsCompressed() {
		c.flateWriter.Reset(c.writer)
		if _, err = io.Copy(c.flateWriter, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = c.flateWriter.Close(); chk.D(err) {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = io.Copy(c.writer, bytes.NewReader(data)); chk.D(err) {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err = c.writer.Flush(); chk.D(err) {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// WritePing sends a ping control frame.
func (c *C) WritePing() error {
	return wsutil.WriteClientMessage(c.Conn, ws.OpPing, nil)
}

// ReadMessage blocks until the next text or binary message arrives and
// copies it into buf, answering control frames on the way. A read error or
// a message over ReadLimit closes the socket.
func (c *C) ReadMessage(cx context.T, buf io.Writer) (err error) {
	var h ws.Header
	for {
		select {
		case <-cx.Done():
			return fmt.Errorf("reading message: %w", cx.Err())
		default:
		}
		if h, err = c.reader.NextFrame(); chk.D(err) {
			chk.D(c.Conn.Close())
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); chk.D(err) {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
		} else if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); chk.D(err) {
			return fmt.Errorf("failed to discard: %w", err)
		}
	}
	if h.Length > c.ReadLimit {
		chk.D(c.Conn.Close())
		return fmt.Errorf("%w: frame of %d bytes", ErrMessageTooLarge,
			h.Length)
	}
	var src io.Reader = c.reader
	if c.readState.IsCompressed() && c.enableCompression {
		c.flateReader.Reset(c.reader)
		src = c.flateReader
	}
	var n int64
	if n, err = io.Copy(buf, io.LimitReader(src, c.ReadLimit+1)); chk.D(err) {
		return fmt.Errorf("failed to read message: %w", err)
	}
	if n > c.ReadLimit {
		chk.D(c.Conn.Close())
		return fmt.Errorf("%w: over %d bytes", ErrMessageTooLarge,
			c.ReadLimit)
	}
	return nil
}

func (c *C) Close() (err error) { return c.Conn.Close() }
