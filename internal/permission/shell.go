package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellCommand is one parsed command within a shell line.
type ShellCommand struct {
	Name       string
	Args       []string
	Subcommand string // first non-flag argument, e.g. "commit" in "git commit"
}

// ParseShell parses a shell command line into its individual commands,
// including those behind pipes and && chains.
func ParseShell(command string) ([]ShellCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []ShellCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

// ShellPatterns derives the permission patterns for a shell line, one per
// distinct command, in "name subcommand *" form. These are the values a
// bash-style tool submits to the evaluator, and the patterns remembered by
// an "always" approval.
func ShellPatterns(command string) ([]string, error) {
	commands, err := ParseShell(command)
	if err != nil {
		// An unparseable line is still gated: submit it verbatim so only
		// an exact-match rule can allow it.
		return []string{command}, nil
	}

	seen := make(map[string]bool)
	var patterns []string
	for _, cmd := range commands {
		p := commandPattern(cmd)
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		patterns = []string{command}
	}
	return patterns, nil
}

func commandPattern(cmd ShellCommand) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	if len(cmd.Args) == 0 {
		return cmd.Name
	}
	return cmd.Name + " *"
}

func extractCommand(call *syntax.CallExpr) *ShellCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &ShellCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		s := wordToString(arg)
		cmd.Args = append(cmd.Args, s)
		if cmd.Subcommand == "" && !strings.HasPrefix(s, "-") {
			cmd.Subcommand = s
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
