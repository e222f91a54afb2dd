package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DefaultDoomLoopThreshold is how many consecutive identical tool calls
// count as a runaway loop.
const DefaultDoomLoopThreshold = 3

// historyCap bounds per-key history so it cannot grow without limit.
const historyCap = 10

// DoomLoopDetector recognizes the degenerate pattern of the model issuing
// the same tool call with identical input over and over. Keys are scoped
// by the caller (one assistant message per key).
type DoomLoopDetector struct {
	threshold int

	mu      sync.Mutex
	history map[string][]string
}

// NewDoomLoopDetector creates a detector. threshold <= 0 uses the default.
func NewDoomLoopDetector(threshold int) *DoomLoopDetector {
	if threshold <= 0 {
		threshold = DefaultDoomLoopThreshold
	}
	return &DoomLoopDetector{
		threshold: threshold,
		history:   make(map[string][]string),
	}
}

// Observe records a tool call and reports whether it completes a run of
// `threshold` identical calls.
func (d *DoomLoopDetector) Observe(key, toolName string, input any) bool {
	hash := hashCall(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[key], hash)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	d.history[key] = history

	if len(history) < d.threshold {
		return false
	}
	for _, h := range history[len(history)-d.threshold:] {
		if h != hash {
			return false
		}
	}
	return true
}

// Forget drops the history for a key, typically when its assistant
// message finishes.
func (d *DoomLoopDetector) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, key)
}

// TrackedKeys reports how many keys currently hold history.
func (d *DoomLoopDetector) TrackedKeys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

func hashCall(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "input": input})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
