// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"github.com/dustin/go-humanize"

	"signalmon/internal/event"
	"signalmon/internal/log"
)

// LoggingTransport writes events to the log. Diagnostics are logged at WARN,
// failed completions at ERROR and batches only at DEBUG.
type LoggingTransport struct {
	log *log.Logger

	mu      sync.Mutex
	batches uint64
	samples uint64
	diags   uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: log.New("transport").With("log")}
	lt.log.Debugf("using logging transport")
	return lt
}

// Send logs ev. It never fails.
func (lt *LoggingTransport) Send(ev event.Event) error {
	src := shortID(ev.SourceID())
	switch e := ev.(type) {
	case event.Batch:
		lt.mu.Lock()
		lt.batches++
		lt.samples += uint64(e.Len())
		lt.mu.Unlock()
		lt.log.Debugf("%s ch%d: %d samples", src, e.Channel, e.Len())
	case event.Control:
		lt.log.Infof("%s ch%d: %s %s", src, e.Channel, e.Command.Word, e.Command.Payload)
	case event.ChannelCreated:
		lt.log.Infof("%s ch%d: created %s", src, e.Channel, e.ID)
	case event.Diagnostic:
		lt.mu.Lock()
		lt.diags++
		lt.mu.Unlock()
		lt.log.Warnf("%s ch%d: %v", src, e.Channel, e.Err)
	case event.Completed:
		if e.Err != nil {
			lt.log.Errorf("%s completed: %v", src, e.Err)
		} else {
			lt.log.Infof("%s completed", src)
		}
	}
	return nil
}

// Totals returns how many batches, samples and diagnostics were seen.
func (lt *LoggingTransport) Totals() (batches, samples, diagnostics uint64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.batches, lt.samples, lt.diags
}

// Close logs the totals.
func (lt *LoggingTransport) Close() error {
	b, s, d := lt.Totals()
	lt.log.Infof("%s batches, %s samples, %s diagnostics",
		humanize.Comma(int64(b)), humanize.Comma(int64(s)), humanize.Comma(int64(d)))
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
