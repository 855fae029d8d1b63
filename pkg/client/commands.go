package client

import (
	"errors"
	"strings"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command (try help)")
	ErrLoginUsage     = errors.New("usage: login <username>")
)

// Command is one parsed line of user input.
type Command struct {
	Request protocol.Request
	Quit    bool // leave without talking to the server
}

// ParseCommand turns a line typed by the user into a request.
//
//	login <name>   msg <text>   names   logout   help   quit
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	verb, rest, _ := strings.Cut(line, " ")

	switch verb {
	case "login":
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return Command{}, ErrLoginUsage
		}
		return Command{Request: protocol.Request{Kind: protocol.RequestLogin, Content: fields[0]}}, nil
	case "msg":
		return Command{Request: protocol.Request{Kind: protocol.RequestMessage, Content: rest}}, nil
	}

	switch strings.TrimSpace(line) {
	case "names":
		return Command{Request: protocol.Request{Kind: protocol.RequestNames}}, nil
	case "logout":
		return Command{Request: protocol.Request{Kind: protocol.RequestLogout}}, nil
	case "help":
		return Command{Request: protocol.Request{Kind: protocol.RequestHelp}}, nil
	case "quit", "exit":
		return Command{Quit: true}, nil
	}
	return Command{}, ErrUnknownCommand
}
