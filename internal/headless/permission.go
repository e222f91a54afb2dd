package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cadenza-ai/cadenza/internal/permission"
)

// AutoApprovePrompt grants every ask. Used with --auto-approve; the run
// is unattended, so nothing ever blocks on consent.
func AutoApprovePrompt() permission.PromptFunc {
	return func(ctx context.Context, req permission.Request) (permission.Reply, error) {
		return permission.ReplyOnce, nil
	}
}

// TerminalPrompt asks on the terminal and reads a one-letter answer:
// y (once), a (always), anything else denies.
func TerminalPrompt(in io.Reader, out io.Writer) permission.PromptFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req permission.Request) (permission.Reply, error) {
		if err := ctx.Err(); err != nil {
			return permission.ReplyDeny, err
		}

		fmt.Fprintf(out, "\n[permission] %s\n", req.Title)
		if len(req.Patterns) > 0 {
			fmt.Fprintf(out, "  %s: %s\n", req.Permission, strings.Join(req.Patterns, ", "))
		}
		fmt.Fprint(out, "Allow? [y]es / [a]lways / [n]o: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return permission.ReplyDeny, nil
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return permission.ReplyOnce, nil
		case "a", "always":
			return permission.ReplyAlways, nil
		default:
			return permission.ReplyDeny, nil
		}
	}
}
