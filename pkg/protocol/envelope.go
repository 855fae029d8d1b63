// Package protocol defines the ChitChat request/response envelopes and the
// stream framing used to carry them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trondhumbor/ChitChat/pkg/model"
)

// RequestKind is the closed set of requests a client may send.
type RequestKind string

const (
	RequestLogin   RequestKind = "login"
	RequestMessage RequestKind = "message"
	RequestLogout  RequestKind = "logout"
	RequestNames   RequestKind = "names"
	RequestHelp    RequestKind = "help"
)

// ResponseKind is the closed set of responses the server may send.
type ResponseKind string

const (
	ResponseInfo    ResponseKind = "info"
	ResponseError   ResponseKind = "error"
	ResponseMessage ResponseKind = "message"
	ResponseHistory ResponseKind = "history"
	ResponseNames   ResponseKind = "names"
	ResponseLogout  ResponseKind = "logout"
)

// Request is the client -> server envelope.
type Request struct {
	Kind    RequestKind `json:"request"`
	Content string      `json:"content"`
}

// Response is the server -> client envelope. History is used only when
// Kind is ResponseHistory; every other kind carries Text.
type Response struct {
	Timestamp int64
	Sender    string
	Kind      ResponseKind
	Text      string
	History   []model.Message
}

type wireResponse struct {
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Kind      ResponseKind    `json:"response"`
	Content   json.RawMessage `json:"content"`
}

// MarshalJSON encodes content as a string or, for history, as a list of messages.
func (r Response) MarshalJSON() ([]byte, error) {
	var content any = r.Text
	if r.Kind == ResponseHistory {
		history := r.History
		if history == nil {
			history = []model.Message{}
		}
		content = history
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireResponse{
		Timestamp: r.Timestamp,
		Sender:    r.Sender,
		Kind:      r.Kind,
		Content:   raw,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Response{Timestamp: w.Timestamp, Sender: w.Sender, Kind: w.Kind}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	if w.Kind == ResponseHistory {
		return json.Unmarshal(w.Content, &r.History)
	}
	return json.Unmarshal(w.Content, &r.Text)
}

// NewResponse builds a text response stamped with at.
func NewResponse(kind ResponseKind, sender, text string, at time.Time) Response {
	return Response{
		Timestamp: at.Unix(),
		Sender:    sender,
		Kind:      kind,
		Text:      text,
	}
}

// NewHistory builds a history response carrying a copy-owned log snapshot.
func NewHistory(sender string, history []model.Message, at time.Time) Response {
	return Response{
		Timestamp: at.Unix(),
		Sender:    sender,
		Kind:      ResponseHistory,
		History:   history,
	}
}

// NewErrorResponse builds an error response whose text is err's reason.
func NewErrorResponse(sender string, err error, at time.Time) Response {
	return NewResponse(ResponseError, sender, err.Error(), at)
}

// MessageResponse wraps a chat log entry for broadcast.
func MessageResponse(m model.Message) Response {
	return Response{
		Timestamp: m.Timestamp,
		Sender:    m.Sender,
		Kind:      ResponseMessage,
		Text:      m.Content,
	}
}

// DecodeRequest parses one request envelope. Any parse failure is reported
// as model.ErrMalformedMessage; a well-formed envelope with an unknown kind
// is returned as-is for the dispatcher to reject.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	return req, nil
}

// EncodeRequest serializes a request envelope.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal request: %w", err)
	}
	return data, nil
}

// EncodeResponse serializes a response envelope.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal response: %w", err)
	}
	return data, nil
}

// DecodeResponse parses one response envelope.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("protocol: unmarshal response: %w", err)
	}
	return resp, nil
}
