package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// toolCallSignature identifies a call by name and a hash of its arguments.
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// loopDetector keeps the signatures of every tool call made in a session.
type loopDetector struct {
	window int
	sigs   []string
}

func (d *loopDetector) record(name string, arguments json.RawMessage) {
	d.sigs = append(d.sigs, toolCallSignature(name, arguments))
}

// looping reports whether the last window calls repeat a cycle of length
// 1, 2 or 3.
func (d *loopDetector) looping() bool {
	return repeatsCycle(d.sigs, d.window)
}

func repeatsCycle(sigs []string, window int) bool {
	if window <= 0 || len(sigs) < window {
		return false
	}
	recent := sigs[len(sigs)-window:]
	for cycle := 1; cycle <= 3; cycle++ {
		if window%cycle != 0 || window == cycle {
			continue
		}
		match := true
		for i := cycle; i < window && match; i++ {
			match = recent[i] == recent[i%cycle]
		}
		if match {
			return true
		}
	}
	return false
}
