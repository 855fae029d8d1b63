package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFraming(t *testing.T) {
	tests := []struct {
		in      string
		want    Framing
		wantErr bool
	}{
		{"length", FramingLength, false},
		{"line", FramingLine, false},
		{"", FramingLength, false},
		{"LINE", "", true},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFraming(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFraming)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLengthFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, FramingLength, []byte(`{"request":"help"}`), 0))
	require.NoError(t, WriteFrame(&buf, FramingLength, []byte(`{}`), 0))

	assert.Equal(t, uint32(18), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	r := NewFrameReader(&buf, FramingLength, 0)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"request":"help"}`, string(got))

	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLengthFramingTooLarge(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 1<<20)
	r := NewFrameReader(bytes.NewReader(hdr[:]), FramingLength, 1024)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = AppendFrame(nil, FramingLength, make([]byte, 2048), 1024)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestResponseSizedFrames(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4*MaxFrameSize)
	for _, f := range []Framing{FramingLength, FramingLine} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, f, payload, MaxResponseSize))

			got, err := NewFrameReader(&buf, f, MaxResponseSize).ReadFrame()
			require.NoError(t, err)
			assert.Len(t, got, len(payload))
		})
	}
}

func TestLengthFramingTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("abc")

	_, err := NewFrameReader(&buf, FramingLength, 0).ReadFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestLineFraming(t *testing.T) {
	input := "{\"request\":\"login\",\"content\":\"alice\"}\r\n\n   \n{\"request\":\"names\"}\n{\"request\":\"help\"}"
	r := NewFrameReader(strings.NewReader(input), FramingLine, 0)

	var frames []string
	for {
		f, err := r.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frames = append(frames, string(f))
	}
	assert.Equal(t, []string{
		`{"request":"login","content":"alice"}`,
		`{"request":"names"}`,
		`{"request":"help"}`,
	}, frames)
}

func TestLineFramingTooLong(t *testing.T) {
	r := NewFrameReader(strings.NewReader(strings.Repeat("a", 200)+"\n"), FramingLine, 64)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestLineFramingRejectsEmbeddedNewline(t *testing.T) {
	_, err := AppendFrame(nil, FramingLine, []byte("a\nb"), 0)
	assert.ErrorIs(t, err, ErrEmbeddedLF)
}

func TestAppendFrameUnknownFraming(t *testing.T) {
	_, err := AppendFrame(nil, Framing("smoke"), []byte("x"), 0)
	assert.ErrorIs(t, err, ErrUnknownFraming)
}

type failWriter struct{}

func (failWriter) Write(_ []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriteFrameError(t *testing.T) {
	err := WriteFrame(failWriter{}, FramingLength, []byte("x"), 0)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
