package client

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// RenderOptions controls how responses are printed.
type RenderOptions struct {
	Color      bool
	HideOwn    bool // suppress live echoes of the user's own messages
	Timestamps bool
}

// Renderer prints server responses for a human. It is safe for concurrent use.
type Renderer struct {
	mu   sync.Mutex
	out  io.Writer
	opts RenderOptions
	self string // name confirmed by the last history response

	sender *color.Color
	info   *color.Color
	errc   *color.Color
	dim    *color.Color
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer, opts RenderOptions) *Renderer {
	r := &Renderer{
		out:    out,
		opts:   opts,
		sender: color.New(color.FgCyan, color.Bold),
		info:   color.New(color.FgGreen),
		errc:   color.New(color.FgRed),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.sender, r.info, r.errc, r.dim} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render prints resp. It reports true when the client should exit,
// which is after the server confirms a logout.
func (r *Renderer) Render(resp protocol.Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch resp.Kind {
	case protocol.ResponseMessage:
		if r.opts.HideOwn && r.self != "" && resp.Sender == r.self {
			return false
		}
		r.printMessage(model.Message{Timestamp: resp.Timestamp, Sender: resp.Sender, Content: resp.Text})
	case protocol.ResponseHistory:
		r.self = resp.Sender
		for _, m := range resp.History {
			r.printMessage(m)
		}
	case protocol.ResponseInfo:
		r.println(r.info.Sprintf("[%s] - %s", resp.Kind, resp.Text))
	case protocol.ResponseError:
		r.println(r.errc.Sprintf("[%s] - %s", resp.Kind, resp.Text))
	case protocol.ResponseNames:
		r.println(strings.ReplaceAll(resp.Text, "\r\n", "\n"))
	case protocol.ResponseLogout:
		r.self = ""
		r.println(r.info.Sprintf("[%s] - %s", resp.Kind, resp.Text))
		return true
	default:
		r.println(r.errc.Sprintf("Unsupported response %q", resp.Kind))
	}
	return false
}

// Notice prints a client-side message such as a usage error.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.dim.Sprintf(format, args...))
}

func (r *Renderer) printMessage(m model.Message) {
	line := r.sender.Sprint(m.Sender) + " -- " + m.Content
	if r.opts.Timestamps {
		line = r.dim.Sprint(m.Time().Local().Format(time.TimeOnly)) + " " + line
	}
	r.println(line)
}

func (r *Renderer) println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}
