package server

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

func TestRequestsBeforeLogin(t *testing.T) {
	tcases := map[string]struct {
		kind     protocol.RequestKind
		content  string
		wantKind protocol.ResponseKind
		wantText string
	}{
		"names":   {kind: protocol.RequestNames, wantKind: protocol.ResponseError, wantText: model.ErrNotLoggedIn.Error()},
		"message": {kind: protocol.RequestMessage, content: "hi", wantKind: protocol.ResponseError, wantText: model.ErrNotLoggedIn.Error()},
		"logout":  {kind: protocol.RequestLogout, wantKind: protocol.ResponseError, wantText: model.ErrNotLoggedIn.Error()},
		"help":    {kind: protocol.RequestHelp, wantKind: protocol.ResponseInfo, wantText: HelpText},
		"unknown": {kind: "shout", content: "x", wantKind: protocol.ResponseError, wantText: model.ErrIllegalRequest.Error()},
		"empty":   {kind: "", wantKind: protocol.ResponseError, wantText: model.ErrIllegalRequest.Error()},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			h := newTestHub()
			s := newIdleSession(t, h, 8)

			if err := (Dispatcher{}).Dispatch(s, protocol.Request{Kind: tc.kind, Content: tc.content}); err != nil {
				s.replyError(err)
			}

			resp := popResponse(t, s)
			assert.Equal(t, tc.wantKind, resp.Kind)
			assert.Equal(t, tc.wantText, resp.Text)
			assert.Empty(t, resp.Sender)
			assert.Equal(t, fixedNow.Unix(), resp.Timestamp)
			requireEmptyOutbox(t, s)
			assert.Zero(t, h.LogLen())
			assert.Empty(t, h.Names())
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestHub()
	s := newIdleSession(t, h, 16)
	d := Dispatcher{}

	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestLogin, Content: "alice"}))
	resp := popResponse(t, s)
	require.Equal(t, protocol.ResponseHistory, resp.Kind)
	assert.Equal(t, "alice", resp.Sender)
	assert.Empty(t, resp.History)
	assert.Equal(t, StateAuthenticated, s.State())

	require.ErrorIs(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestLogin, Content: "alice"}), model.ErrAlreadyLoggedIn)
	require.ErrorIs(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestLogin, Content: "other"}), model.ErrAlreadyLoggedIn)
	assert.Equal(t, []string{"alice"}, h.Names())

	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestNames}))
	resp = popResponse(t, s)
	assert.Equal(t, protocol.ResponseNames, resp.Kind)
	assert.Equal(t, "Names: \r\nalice", resp.Text)
	assert.Equal(t, "alice", resp.Sender)

	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestMessage, Content: "hello"}))
	resp = popResponse(t, s)
	assert.Equal(t, protocol.ResponseMessage, resp.Kind)
	assert.Equal(t, "alice", resp.Sender)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 1, h.LogLen())

	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestHelp}))
	resp = popResponse(t, s)
	assert.Equal(t, protocol.ResponseInfo, resp.Kind)
	assert.Equal(t, "alice", resp.Sender)

	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestLogout}))
	resp = popResponse(t, s)
	assert.Equal(t, protocol.ResponseLogout, resp.Kind)
	assert.Equal(t, "You've been logged out", resp.Text)
	assert.Equal(t, "alice", resp.Sender)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Username())
	assert.Empty(t, h.Names())

	require.ErrorIs(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestNames}), model.ErrNotLoggedIn)
	require.ErrorIs(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestMessage, Content: "x"}), model.ErrNotLoggedIn)
	assert.Equal(t, 1, h.LogLen())

	// The name is free again and history now includes the earlier message.
	require.NoError(t, d.Dispatch(s, protocol.Request{Kind: protocol.RequestLogin, Content: "alice"}))
	resp = popResponse(t, s)
	require.Equal(t, protocol.ResponseHistory, resp.Kind)
	want := []model.Message{{Timestamp: fixedNow.Unix(), Sender: "alice", Content: "hello"}}
	if diff := cmp.Diff(want, resp.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	requireEmptyOutbox(t, s)
}

func TestLoginUsernames(t *testing.T) {
	tcases := map[string]struct {
		name    string
		wantErr error
	}{
		"ascii":            {name: "alice"},
		"digits":           {name: "bob42"},
		"only digits":      {name: "1234"},
		"unicode letters":  {name: "Ørjan"},
		"arabic digits":    {name: "٣٤"},
		"empty":            {name: "", wantErr: model.ErrInvalidUsername},
		"punctuation":      {name: "bob!", wantErr: model.ErrInvalidUsername},
		"space":            {name: "bob smith", wantErr: model.ErrInvalidUsername},
		"underscore":       {name: "bob_smith", wantErr: model.ErrInvalidUsername},
		"trailing newline": {name: "bob\n", wantErr: model.ErrInvalidUsername},
		"emoji":            {name: "bob🙂", wantErr: model.ErrInvalidUsername},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			h := newTestHub()
			s := newIdleSession(t, h, 4)

			err := s.Login(tc.name)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, h.Names(), "registry must be unchanged")
				assert.Equal(t, StateUnauthenticated, s.State())
				requireEmptyOutbox(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tc.name}, h.Names())
			assert.Equal(t, protocol.ResponseHistory, popResponse(t, s).Kind)
		})
	}
}

func TestUsernameTakenIsCaseSensitive(t *testing.T) {
	h := newTestHub()
	first := newIdleSession(t, h, 4)
	second := newIdleSession(t, h, 4)
	third := newIdleSession(t, h, 4)

	require.NoError(t, first.Login("alice"))
	require.ErrorIs(t, second.Login("alice"), model.ErrUsernameTaken)
	assert.Equal(t, StateUnauthenticated, second.State())
	require.NoError(t, third.Login("Alice"))

	assert.Equal(t, []string{"alice", "Alice"}, h.Names())
	assert.Equal(t, int64(1), h.broadcaster.metrics.FailedLogins.Load())
	assert.Equal(t, int64(2), h.broadcaster.metrics.SuccessfulLogins.Load())
}

func TestConcurrentLoginSameName(t *testing.T) {
	h := newTestHub()
	const n = 64

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = newIdleSession(t, h, 4)
	}

	errs := make([]error, n)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			errs[i] = s.Login("alice")
		}()
	}
	start.Done()
	wg.Wait()

	var winners int
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Equal(t, StateAuthenticated, sessions[i].State())
			continue
		}
		assert.ErrorIs(t, err, model.ErrUsernameTaken)
		assert.Equal(t, StateUnauthenticated, sessions[i].State())
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, []string{"alice"}, h.Names())
}

func TestChatLogGrowsByOnePerMessage(t *testing.T) {
	h := newTestHub()
	s := newIdleSession(t, h, 64)
	require.NoError(t, s.Login("alice"))

	for i := range 10 {
		require.NoError(t, s.SendMessage("msg"))
		assert.Equal(t, i+1, h.LogLen())
	}

	// Empty content is accepted.
	require.NoError(t, s.SendMessage(""))
	assert.Equal(t, 11, h.LogLen())
}

func TestHistoryIsACopy(t *testing.T) {
	h := newTestHub()
	h.Append(model.Message{Timestamp: 1, Sender: "alice", Content: "one"})

	snap := h.History()
	snap[0].Content = "mutated"

	assert.Equal(t, "one", h.History()[0].Content)
	assert.Equal(t, 1, h.LogLen())

	names := h.Names()
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestRemoveIgnoresStaleSession(t *testing.T) {
	h := newTestHub()
	old := newIdleSession(t, h, 4)
	cur := newIdleSession(t, h, 4)

	require.NoError(t, h.Add("alice", cur))
	assert.False(t, h.Remove("alice", old))
	assert.Equal(t, []string{"alice"}, h.Names())
	assert.True(t, h.Remove("alice", cur))
	assert.Empty(t, h.Names())
}

func TestMalformedFrames(t *testing.T) {
	tcases := map[string]struct {
		frame    string
		wantText string
	}{
		"truncated":       {frame: `{"request": "login"`, wantText: model.ErrMalformedMessage.Error()},
		"not json":        {frame: `login alice`, wantText: model.ErrMalformedMessage.Error()},
		"array":           {frame: `[]`, wantText: model.ErrMalformedMessage.Error()},
		"numeric request": {frame: `{"request": 5, "content": ""}`, wantText: model.ErrMalformedMessage.Error()},
		"numeric content": {frame: `{"request": "login", "content": 7}`, wantText: model.ErrMalformedMessage.Error()},
		"empty object":    {frame: `{}`, wantText: model.ErrIllegalRequest.Error()},
		"null":            {frame: `null`, wantText: model.ErrIllegalRequest.Error()},
		"missing content": {frame: `{"request": "login"}`, wantText: model.ErrInvalidUsername.Error()},
		"unknown request": {frame: `{"request": "shout", "content": "hi"}`, wantText: model.ErrIllegalRequest.Error()},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			h := newTestHub()
			s := newIdleSession(t, h, 4)

			Dispatcher{}.HandleFrame(s, []byte(tc.frame))

			resp := popResponse(t, s)
			assert.Equal(t, protocol.ResponseError, resp.Kind)
			assert.Equal(t, tc.wantText, resp.Text)
			requireEmptyOutbox(t, s)
			assert.NotEqual(t, StateTerminated, s.State())
		})
	}
}

func TestMalformedCounted(t *testing.T) {
	h := newTestHub()
	s := newIdleSession(t, h, 4)
	Dispatcher{}.HandleFrame(s, []byte("{"))
	assert.Equal(t, int64(1), h.broadcaster.metrics.MalformedRequests.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(42).String())
}
