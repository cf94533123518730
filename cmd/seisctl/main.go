// seisctl is a command shell for a seiscube server.
//
// With arguments it runs one command and exits:
//
//	seisctl --server localhost:8000 upload survey.sgy
//
// Without arguments on a terminal it starts an interactive shell. When stdin
// is not a terminal, commands are read one per line.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/xtxerr/seiscube/internal/client"
)

func main() {
	fs := pflag.NewFlagSet("seisctl", pflag.ExitOnError)
	server := fs.StringP("server", "s", envOr("SEISCUBE_SERVER", "http://localhost:8000"), "server address")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	fs.Parse(os.Args[1:])

	cfg := client.DefaultConfig()
	cfg.BaseURL = *server
	cfg.RequestTimeout = *timeout
	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seisctl: %v\n", err)
		os.Exit(2)
	}

	sh := &shell{client: c, out: os.Stdout}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			sh.width = w
		}
	}

	ctx := context.Background()
	switch {
	case fs.NArg() > 0:
		if err := sh.exec(ctx, strings.Join(fs.Args(), " ")); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		interactive(ctx, sh)
	default:
		if !batch(ctx, sh) {
			os.Exit(1)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// batch runs one command per stdin line and reports whether all succeeded.
func batch(ctx context.Context, sh *shell) bool {
	ok := true
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := sh.exec(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
			ok = false
		}
	}
	return ok
}

func interactive(ctx context.Context, sh *shell) {
	fmt.Printf("seisctl connected to %s (type help, exit to quit)\n", sh.client.BaseURL())

	executor := func(line string) {
		line = strings.TrimSpace(line)
		switch line {
		case "":
			return
		case "exit", "quit":
			os.Exit(0)
		}
		if err := sh.exec(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	p := prompt.New(executor, completer,
		prompt.OptionPrefix("seiscube> "),
		prompt.OptionTitle("seisctl"),
	)
	p.Run()
}

var axisSuggestions = []prompt.Suggest{
	{Text: "inline", Description: "slice at a fixed inline"},
	{Text: "xline", Description: "slice at a fixed crossline"},
	{Text: "sample", Description: "slice at a fixed time or depth sample"},
}

func completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	fields := strings.Fields(before)
	word := d.GetWordBeforeCursor()

	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		s := make([]prompt.Suggest, 0, len(commands)+1)
		for _, c := range commands {
			s = append(s, prompt.Suggest{Text: c.name, Description: c.help})
		}
		s = append(s, prompt.Suggest{Text: "exit", Description: "leave the shell"})
		return prompt.FilterHasPrefix(s, word, true)
	}

	if fields[0] == "slice" && (len(fields) == 1 || (len(fields) == 2 && !strings.HasSuffix(before, " "))) {
		return prompt.FilterHasPrefix(axisSuggestions, word, true)
	}
	return nil
}
