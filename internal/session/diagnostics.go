package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// recentErrorCapacity bounds the diagnostic error ring. Must be a power of
// two for the underlying MPMC ring.
const recentErrorCapacity = 16

// errorLog keeps the most recent engine failures (including every strategy
// fallback) in a bounded overwrite-oldest ring for the diagnostic snapshot.
type errorLog struct {
	mu  sync.Mutex
	buf mpmc.RichOverlappedRingBuffer[string]
}

func newErrorLog() *errorLog {
	return &errorLog{buf: mpmc.NewOverlappedRingBuffer[string](recentErrorCapacity)}
}

// record appends one entry, overwriting the oldest when full.
func (l *errorLog) record(context string, err error) {
	entry := fmt.Sprintf("%s %s: %v", time.Now().Format(time.RFC3339), context, err)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.buf.EnqueueM(entry); err != nil {
		// Overlapped ring never refuses; nothing sensible to do here.
		_ = err
	}
}

// recent drains the ring into a slice and re-enqueues the entries so the
// snapshot is non-destructive.
func (l *errorLog) recent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []string
	for !l.buf.IsEmpty() {
		entry, err := l.buf.Dequeue()
		if err != nil {
			break
		}
		entries = append(entries, entry)
	}
	for _, entry := range entries {
		_, _ = l.buf.EnqueueM(entry)
	}
	return entries
}

// Diagnostics is a point-in-time view of the engine for external tooling.
type Diagnostics struct {
	State           State
	Model           string
	Layout          string
	Characteristics int
	Subscriptions   int

	HeartbeatRunning bool
	KeepaliveRunning bool
	WatchdogRunning  bool

	LastErrorKind ErrorKind
	LastError     string
	RecentErrors  []string
}
