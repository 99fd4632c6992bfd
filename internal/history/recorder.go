package history

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/diddy-rotations/svsync/internal/daemon"
)

// Recorder is a daemon.Observer that stores every sync in a Store.
// Failures to record are logged and never reach the daemon.
type Recorder struct {
	daemon.NopObserver

	store       *Store
	destination string
	logger      *log.Logger
	timeout     time.Duration
}

// NewRecorder creates a Recorder. destination is stat'ed after each sync to
// record the resulting file size.
func NewRecorder(store *Store, destination string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(os.Stderr, "[history] ", log.LstdFlags)
	}
	return &Recorder{
		store:       store,
		destination: destination,
		logger:      logger,
		timeout:     5 * time.Second,
	}
}

// OnSync implements daemon.Observer.
func (r *Recorder) OnSync(rec daemon.SyncRecord) {
	entry := Entry{
		Trigger:    string(rec.Trigger),
		Units:      rec.Units,
		StartedAt:  rec.Started,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	} else if info, err := os.Stat(r.destination); err == nil {
		entry.Bytes = info.Size()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.store.Add(ctx, entry); err != nil {
		r.logger.Printf("Failed to record sync: %v", err)
	}
}
