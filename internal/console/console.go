// Package console handles single-key operator commands typed into the
// terminal running the server.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scottschroeder/storyestimate/internal/logger"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

// StartFunc launches an external command without waiting for it.
type StartFunc func(name string, args ...string) error

func startCommand(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Console dispatches key presses to operator actions.
type Console struct {
	log     logger.Logger
	out     io.Writer
	url     string
	quit    func()
	start   StartFunc
	goos    string
	restore func()
}

// New creates a console. url is opened by the "o" key; quit is called on "q"
// or Ctrl+C.
func New(log logger.Logger, out io.Writer, url string, quit func()) *Console {
	return &Console{
		log:   log,
		out:   out,
		url:   url,
		quit:  quit,
		start: startCommand,
		goos:  runtime.GOOS,
	}
}

// Run reads keys from in until ctx is done or in is exhausted. When in is a
// terminal it is switched to unbuffered input and restored on return.
func (c *Console) Run(ctx context.Context, in io.Reader) {
	if f, ok := in.(*os.File); ok {
		if restore, err := rawInput(int(f.Fd())); err == nil {
			c.restore = restore
			defer restore()
		}
	}

	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()

	c.PrintHelp()
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-keys:
			if !ok {
				return
			}
			c.Handle(key)
		}
	}
}

// Handle performs the action bound to key.
func (c *Console) Handle(key byte) {
	switch strings.ToLower(string(key)) {
	case "o":
		fmt.Fprintf(c.out, "%sOpening %s in browser...%s\n", cyan, c.url, reset)
		if err := OpenBrowser(c.url, c.start, c.goos); err != nil {
			fmt.Fprintf(c.out, "%sError opening browser: %v%s\n", red, err, reset)
		}
	case "h":
		if c.log.IsHTTPLoggingEnabled() {
			c.log.DisableHTTPLogging()
			fmt.Fprintf(c.out, "%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			c.log.EnableHTTPLogging()
			fmt.Fprintf(c.out, "%sHTTP logging enabled%s\n", green, reset)
		}
	case "l":
		next := nextLevel(c.log.GetLevel())
		c.log.SetLevel(next)
		fmt.Fprintf(c.out, "%sLog level: %s%s%s\n", green, yellow, next, reset)
	case "q", "\x03":
		fmt.Fprintf(c.out, "%sShutting down server...%s\n", yellow, reset)
		if c.restore != nil {
			c.restore()
		}
		c.quit()
	case "?":
		c.PrintHelp()
	}
}

// PrintHelp lists the key bindings.
func (c *Console) PrintHelp() {
	fmt.Fprintf(c.out, "\n%s%s  Keyboard shortcuts:%s\n", bold, green, reset)
	fmt.Fprintf(c.out, "    %so%s      - Open the app in a browser\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sl%s      - Cycle log level (debug, info, warn, error)\n", cyan, reset)
	fmt.Fprintf(c.out, "    %sq%s      - Quit server\n", cyan, reset)
	fmt.Fprintf(c.out, "    %s?%s      - Show this help\n\n", cyan, reset)
}

func nextLevel(current zerolog.Level) zerolog.Level {
	switch current {
	case zerolog.DebugLevel:
		return zerolog.InfoLevel
	case zerolog.InfoLevel:
		return zerolog.WarnLevel
	case zerolog.WarnLevel:
		return zerolog.ErrorLevel
	case zerolog.ErrorLevel:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string, start StartFunc, goos string) error {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return start("xdg-open", url)
	case "darwin":
		return start("open", url)
	case "windows":
		return start("rundll32", "url.dll,FileProtocolHandler", url)
	}
	return fmt.Errorf("unsupported platform: %s", goos)
}
