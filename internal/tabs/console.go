package tabs

import (
	"fmt"
	"sync"
	"time"

	"pagepilot/internal/domain"
)

// maxConsoleEntries bounds the per-tab capture buffer; oldest entries
// are dropped first.
const maxConsoleEntries = 200

// ConsoleCapture holds per-tab console buffers. Capture must be enabled
// for a tab before entries are kept; appends for disabled tabs are
// dropped silently.
type ConsoleCapture struct {
	mu      sync.Mutex
	buffers map[int64][]domain.ConsoleEntry
	enabled map[int64]bool
}

// NewConsoleCapture creates an empty capture service.
func NewConsoleCapture() *ConsoleCapture {
	return &ConsoleCapture{
		buffers: make(map[int64][]domain.ConsoleEntry),
		enabled: make(map[int64]bool),
	}
}

// SetEnabled turns capture on or off for a tab. Disabling discards the
// tab's buffer.
func (c *ConsoleCapture) SetEnabled(tabID int64, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled[tabID] = on
	if !on {
		delete(c.buffers, tabID)
	}
}

// Enabled reports whether capture is on for a tab.
func (c *ConsoleCapture) Enabled(tabID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[tabID]
}

// Append records a console entry for a tab if capture is enabled.
func (c *ConsoleCapture) Append(tabID int64, level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled[tabID] {
		return
	}
	buf := append(c.buffers[tabID], domain.ConsoleEntry{
		Level:     level,
		Text:      text,
		Timestamp: time.Now(),
	})
	if len(buf) > maxConsoleEntries {
		buf = buf[len(buf)-maxConsoleEntries:]
	}
	c.buffers[tabID] = buf
}

// Logs returns a copy of the captured entries for a tab, oldest first.
func (c *ConsoleCapture) Logs(tabID int64) []domain.ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.buffers[tabID]
	out := make([]domain.ConsoleEntry, len(buf))
	copy(out, buf)
	return out
}

// Drop removes all capture state for a tab, used when the tab closes.
func (c *ConsoleCapture) Drop(tabID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.enabled, tabID)
	delete(c.buffers, tabID)
}

// String satisfies fmt.Stringer for debug logging.
func (c *ConsoleCapture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("console-capture(%d tabs)", len(c.buffers))
}
