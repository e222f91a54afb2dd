// Package permission gates every side-effecting tool action behind
// allow/deny/ask rules.
package permission

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is the outcome of evaluating a rule.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Any matches every permission name when used in a rule.
const Any = "*"

// DoomLoop is the synthetic permission the stream processor asks under
// when the model repeats the same tool call with identical input.
const DoomLoop = "doom_loop"

// Rule matches a permission name and a value glob, and names the action
// to take.
type Rule struct {
	Permission string `json:"permission"`
	Pattern    string `json:"pattern"`
	Action     Action `json:"action"`
}

// Matches reports whether the rule applies to the given permission and
// value. The permission matches on equality or the "*" wildcard; the value
// matches via glob semantics. A malformed pattern never matches.
func (r Rule) Matches(permission, value string) bool {
	if r.Permission != Any && r.Permission != permission {
		return false
	}
	ok, err := doublestar.Match(r.Pattern, value)
	return err == nil && ok
}

// Ruleset is an ordered rule list; the first matching rule wins.
type Ruleset []Rule

// Evaluate returns the action of the first matching rule, or ActionAsk
// when nothing matches. Evaluation is deterministic: only rule order
// decides ties.
func (rs Ruleset) Evaluate(permission, value string) Action {
	for _, r := range rs {
		if r.Matches(permission, value) {
			return r.Action
		}
	}
	return ActionAsk
}

// Reply is the user's answer to an ask prompt.
type Reply string

const (
	ReplyOnce   Reply = "once"
	ReplyAlways Reply = "always"
	ReplyDeny   Reply = "deny"
)

// Request describes one consent question: a permission name plus the
// values (command patterns, file paths) the tool wants to touch.
type Request struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	MessageID  string         `json:"messageID,omitempty"`
	CallID     string         `json:"callID,omitempty"`
	Permission string         `json:"permission"`
	Patterns   []string       `json:"patterns,omitempty"`
	Title      string         `json:"title"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RejectedError reports a denied permission. It is a first-class outcome,
// not a bug: the caller records it as a tool error and stops gracefully.
type RejectedError struct {
	SessionID  string
	Permission string
	Pattern    string
	CallID     string
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permission %s rejected for %q", e.Permission, e.Pattern)
}

// IsRejected reports whether err is a permission rejection.
func IsRejected(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}
