package server

import (
	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Dispatcher routes decoded requests to Session operations. It holds no state.
type Dispatcher struct{}

// HandleFrame decodes one frame and dispatches it. Decode failures and
// operation errors are answered with an error response on s; nothing is
// returned to the connection loop.
func (d Dispatcher) HandleFrame(s *Session, frame []byte) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		s.metrics.MalformedRequests.Add(1)
		s.log.Debug("malformed request", "err", err, "bytes", len(frame))
		s.replyError(model.ErrMalformedMessage)
		return
	}
	if err := d.Dispatch(s, req); err != nil {
		s.replyError(err)
	}
}

// Dispatch forwards req to the matching operation and returns its error.
func (Dispatcher) Dispatch(s *Session, req protocol.Request) error {
	switch req.Kind {
	case protocol.RequestLogin:
		return s.Login(req.Content)
	case protocol.RequestMessage:
		return s.SendMessage(req.Content)
	case protocol.RequestLogout:
		return s.Logout()
	case protocol.RequestNames:
		return s.ListNames()
	case protocol.RequestHelp:
		return s.Help()
	default:
		s.log.Debug("illegal request", "kind", req.Kind)
		return model.ErrIllegalRequest
	}
}
