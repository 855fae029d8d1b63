package client

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

func TestRender(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tcases := map[string]struct {
		resp     protocol.Response
		want     string
		wantQuit bool
	}{
		"message": {
			resp: protocol.NewResponse(protocol.ResponseMessage, "bob", "hi", at),
			want: "bob -- hi\n",
		},
		"history": {
			resp: protocol.NewHistory("carol", []model.Message{
				{Timestamp: 1, Sender: "alice", Content: "one"},
				{Timestamp: 2, Sender: "bob", Content: "two"},
			}, at),
			want: "alice -- one\nbob -- two\n",
		},
		"empty history": {
			resp: protocol.NewHistory("carol", nil, at),
			want: "",
		},
		"info": {
			resp: protocol.NewResponse(protocol.ResponseInfo, "", "some help", at),
			want: "[info] - some help\n",
		},
		"error": {
			resp: protocol.NewErrorResponse("", model.ErrNotLoggedIn, at),
			want: "[error] - You must be logged in to access this function\n",
		},
		"names": {
			resp: protocol.NewResponse(protocol.ResponseNames, "alice", "Names: \r\nalice\r\nbob", at),
			want: "Names: \nalice\nbob\n",
		},
		"logout": {
			resp:     protocol.NewResponse(protocol.ResponseLogout, "alice", "You've been logged out", at),
			want:     "[logout] - You've been logged out\n",
			wantQuit: true,
		},
		"unsupported": {
			resp: protocol.NewResponse("shrug", "", "", at),
			want: "Unsupported response \"shrug\"\n",
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewRenderer(&buf, RenderOptions{})
			assert.Equal(t, tc.wantQuit, r.Render(tc.resp))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestRenderHideOwn(t *testing.T) {
	at := time.Unix(1700000000, 0)
	var buf bytes.Buffer
	r := NewRenderer(&buf, RenderOptions{HideOwn: true})

	// Before login nothing is ours.
	r.Render(protocol.NewResponse(protocol.ResponseMessage, "alice", "early", at))
	// The history response confirms who we are.
	r.Render(protocol.NewHistory("alice", []model.Message{{Sender: "alice", Content: "from history"}}, at))
	r.Render(protocol.NewResponse(protocol.ResponseMessage, "alice", "echo", at))
	r.Render(protocol.NewResponse(protocol.ResponseMessage, "bob", "reply", at))

	assert.Equal(t, "alice -- early\nalice -- from history\nbob -- reply\n", buf.String())
}

func TestRenderColor(t *testing.T) {
	var plain, colored bytes.Buffer
	msg := protocol.NewResponse(protocol.ResponseMessage, "bob", "hi", time.Unix(0, 0))

	NewRenderer(&plain, RenderOptions{Color: false}).Render(msg)
	NewRenderer(&colored, RenderOptions{Color: true}).Render(msg)

	assert.Equal(t, "bob -- hi\n", plain.String())
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), "bob")
}

func TestRenderTimestamps(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 1, 1, 9, 30, 15, 0, time.Local)
	NewRenderer(&buf, RenderOptions{Timestamps: true}).
		Render(protocol.NewResponse(protocol.ResponseMessage, "bob", "hi", at))
	assert.Equal(t, "09:30:15 bob -- hi\n", buf.String())
}
