// Package datagram implements the line framing used on the UDP channel.
//
// Every value is sent as its own datagram holding the value text followed by
// a single newline. A message from the peer is read chunk by chunk and ends
// with the first read shorter than the chunk size. A message that is an exact
// multiple of the chunk size cannot be told apart from one that continues, so
// the reader then waits for the next datagram.
package datagram

import (
	"bytes"
	"errors"
	"io"
)

const (
	// ChunkSize is the size of a single receive
	ChunkSize = 1024

	// MaxChunks bounds the accumulated message to MaxChunks * ChunkSize bytes
	MaxChunks = 10
)

// ErrMessageTooLarge is returned when a message exceeds the receive bound
var ErrMessageTooLarge = errors.New("datagram: message too large")

// Packet encodes a value into a datagram payload
func Packet(value string) []byte {
	b := make([]byte, 0, len(value)+1)
	b = append(b, value...)
	return append(b, '\n')
}

// Reader reads framed messages from a datagram connection
type Reader struct {
	conn  io.Reader
	chunk int
	limit int
	buf   []byte
}

// NewReader creates reader with the default chunk size and bound
func NewReader(conn io.Reader) *Reader {
	return NewReaderSize(conn, ChunkSize, MaxChunks)
}

// NewReaderSize creates reader that reads chunk bytes at a time and gives up
// once more than chunk * maxChunks bytes have been accumulated
func NewReaderSize(conn io.Reader, chunk, maxChunks int) *Reader {
	return &Reader{
		conn:  conn,
		chunk: chunk,
		limit: chunk * maxChunks,
		buf:   make([]byte, chunk),
	}
}

// ReadMessage reads one message and strips its trailing newline. When the
// message grows past the bound it returns an empty message together with
// ErrMessageTooLarge; the caller decides whether that is fatal. Any other
// error comes from the connection.
func (r *Reader) ReadMessage() ([]byte, error) {
	var data []byte
	for n := r.chunk; n == r.chunk; {
		if len(data) > r.limit {
			return []byte{}, ErrMessageTooLarge
		}
		var err error
		n, err = r.conn.Read(r.buf)
		if err != nil {
			return nil, err
		}
		data = append(data, r.buf[:n]...)
	}
	return bytes.TrimSuffix(data, []byte{'\n'}), nil
}
