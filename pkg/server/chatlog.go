package server

import (
	"github.com/trondhumbor/ChitChat/pkg/model"
)

// ChatLog is the append-only record of delivered messages.
// It is not safe for concurrent use; Hub serializes access.
type ChatLog struct {
	messages []model.Message
}

func (l *ChatLog) append(m model.Message) {
	l.messages = append(l.messages, m)
}

func (l *ChatLog) len() int { return len(l.messages) }

// snapshot returns a copy. It is never nil so it encodes as [].
func (l *ChatLog) snapshot() []model.Message {
	out := make([]model.Message, len(l.messages))
	copy(out, l.messages)
	return out
}
