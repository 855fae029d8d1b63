package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize is the default cap on a single request envelope (64KB).
	MaxFrameSize = 65536
	// MaxResponseSize caps a single server response. History responses
	// carry the whole chat log, so this is far above MaxFrameSize.
	MaxResponseSize = 1 << 30
)

// Framing selects how envelopes are delimited on a byte stream.
type Framing string

const (
	// FramingLength is [4-byte big-endian length][JSON payload].
	FramingLength Framing = "length"
	// FramingLine is one JSON document per '\n'-terminated line.
	FramingLine Framing = "line"
)

var (
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrUnknownFraming = errors.New("protocol: unknown framing")
	ErrEmbeddedLF     = errors.New("protocol: line frame contains newline")
)

// ParseFraming converts a config string to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case FramingLength, FramingLine:
		return Framing(s), nil
	case "":
		return FramingLength, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFraming, s)
}

// FrameReader yields one payload per call to ReadFrame.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// NewFrameReader wraps r with the given framing. maxSize <= 0 means MaxFrameSize.
func NewFrameReader(r io.Reader, f Framing, maxSize int) FrameReader {
	if maxSize <= 0 {
		maxSize = MaxFrameSize
	}
	if f == FramingLine {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), maxSize+1)
		return &lineReader{sc: sc, max: maxSize}
	}
	return &lengthReader{r: r, max: maxSize}
}

type lengthReader struct {
	r   io.Reader
	max int
}

func (lr *lengthReader) ReadFrame() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(lr.r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if uint64(length) > uint64(lr.max) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(lr.r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return data, nil
}

type lineReader struct {
	sc  *bufio.Scanner
	max int
}

func (lr *lineReader) ReadFrame() ([]byte, error) {
	for lr.sc.Scan() {
		line := bytes.TrimRight(lr.sc.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue // blank lines are keep-alives from interactive clients
		}
		if len(line) > lr.max {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(line))
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := lr.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrFrameTooLarge, lr.max)
		}
		return nil, err
	}
	return nil, io.EOF
}

// AppendFrame appends the framed payload to dst. The result can be written
// with a single Write so concurrent writers never interleave partial frames.
func AppendFrame(dst []byte, f Framing, payload []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxFrameSize
	}
	if len(payload) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	switch f {
	case FramingLine:
		if bytes.IndexByte(payload, '\n') >= 0 {
			return nil, ErrEmbeddedLF
		}
		dst = append(dst, payload...)
		return append(dst, '\n'), nil
	case FramingLength, "":
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload))) //nolint:gosec // length bounds-checked above
		dst = append(dst, lenBuf[:]...)
		return append(dst, payload...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, f)
	}
}

// WriteFrame frames payload and writes it to w in one call.
func WriteFrame(w io.Writer, f Framing, payload []byte, maxSize int) error {
	buf, err := AppendFrame(nil, f, payload, maxSize)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}
