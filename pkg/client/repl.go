package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Run drives an interactive session: lines from in become requests and
// responses are printed by r. It returns when the user quits, the server
// confirms a logout, the connection drops, input ends, or ctx is done.
// The client is closed on return.
func Run(ctx context.Context, c *ChatClient, in io.Reader, r *Renderer, autoLogin string) error {
	defer func() { _ = c.Close() }()

	c.SetResponseHandler(func(resp protocol.Response) {
		if r.Render(resp) {
			_ = c.Close()
		}
	})
	c.StartReceiving()

	if autoLogin != "" {
		if err := c.Send(protocol.Request{Kind: protocol.RequestLogin, Content: autoLogin}); err != nil {
			return err
		}
	}

	lines := make(chan string)
	inputErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.Done():
				return
			}
		}
		inputErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case err := <-inputErr:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				r.Notice("%v", err)
				continue
			}
			if cmd.Quit {
				return nil
			}
			if err := c.Send(cmd.Request); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}
}
