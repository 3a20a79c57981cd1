package utils

import "sync"

var (
	onceMu   sync.Mutex
	onceSeen = map[string]struct{}{}
)

// LogOnce reports whether a message key is being seen for the first
// time. Transient-error paths use it to log a distinct failure once
// instead of flooding the log on every tick.
func LogOnce(key string) bool {
	onceMu.Lock()
	defer onceMu.Unlock()

	if _, seen := onceSeen[key]; seen {
		return false
	}
	onceSeen[key] = struct{}{}
	return true
}

// ResetLogOnce clears the dedup set. Tests only.
func ResetLogOnce() {
	onceMu.Lock()
	defer onceMu.Unlock()
	onceSeen = map[string]struct{}{}
}
