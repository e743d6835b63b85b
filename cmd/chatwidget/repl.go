package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quells-bot/chat-session/chat"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Chat interactively; :image <path> [prompt], :history, :quit",
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

func runREPL(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return repl(ctx, a.session, cmd.InOrStdin(), cmd.OutOrStdout(), os.ReadFile)
}

// repl reads one submission per line until EOF or :quit.
func repl(ctx context.Context, s *chat.Session, in io.Reader, out io.Writer, readFile func(string) ([]byte, error)) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == ":quit" || line == ":q":
			return nil

		case line == ":history":
			for _, t := range s.Log() {
				mark := ""
				if t.Failed {
					mark = " (no reply)"
				}
				if t.Message.HasImage() {
					mark += " [image]"
				}
				fmt.Fprintf(out, "%s: %s%s\n", t.Message.Role, t.Message.Text(), mark)
			}

		case strings.HasPrefix(line, ":image"):
			path, prompt, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, ":image")), " ")
			if path == "" {
				fmt.Fprintln(out, "usage: :image <path> [prompt]")
				break
			}
			data, err := readFile(path)
			if err != nil {
				fmt.Fprintf(out, "cannot read %s: %v\n", path, err)
				break
			}
			printReply(out, s.Send(ctx, prompt, data))

		default:
			if r := s.Send(ctx, line, nil); !r.Skipped {
				printReply(out, r)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

func printReply(out io.Writer, r chat.Reply) {
	if r.Failed() {
		fmt.Fprintln(out, r.Text)
		return
	}
	fmt.Fprintln(out, r.Raw)
}
