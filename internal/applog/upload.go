package applog

import (
	"context"
	"time"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

const (
	uploadBatchLimit = DefaultRecentCount
	uploadTimeout    = 30 * time.Second
)

// UploadBatch is what one debounced upload sends.
type UploadBatch struct {
	Endpoint  string  `json:"-"`
	SessionID string  `json:"sessionId"`
	UserID    string  `json:"userId,omitempty"`
	Entries   []Entry `json:"logs"`
}

// Uploader delivers a batch to the remote endpoint.
type Uploader interface {
	UploadLogs(ctx context.Context, batch UploadBatch) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, batch UploadBatch) error

func (f UploaderFunc) UploadLogs(ctx context.Context, batch UploadBatch) error { return f(ctx, batch) }

// scheduleUploadLocked (re)starts the trailing debounce timer. l.mu must be held.
func (l *Logger) scheduleUploadLocked() {
	if l.closed || l.uploader == nil || l.config.UploadURL == "" {
		return
	}
	if l.uploadTimer != nil {
		l.uploadTimer.Stop()
	}
	l.uploadGen++
	gen := l.uploadGen
	l.uploadTimer = time.AfterFunc(l.config.UploadDebounce, func() { l.fireUpload(gen) })
	l.metrics.RecordUpload("scheduled")
}

// UploadPending reports whether a debounced upload is waiting to fire.
func (l *Logger) UploadPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uploadTimer != nil
}

// fireUpload runs when timer gen expires. A timer that fired after being
// superseded is skipped; the newer timer covers its entries.
func (l *Logger) fireUpload(gen uint64) {
	l.mu.Lock()
	if gen != l.uploadGen {
		l.mu.Unlock()
		return
	}
	l.uploadTimer = nil
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(l.ctx, uploadTimeout)
	defer cancel()
	_ = l.upload(ctx)
}

// upload sends the entries logged since the last successful upload, at
// most uploadBatchLimit of them.
func (l *Logger) upload(ctx context.Context) error {
	l.mu.Lock()
	if l.closed && ctx.Err() != nil {
		l.mu.Unlock()
		return nil
	}
	batch := UploadBatch{
		Endpoint:  l.config.UploadURL,
		SessionID: l.sessionID,
	}
	if l.userID != nil {
		batch.UserID = *l.userID
	}
	for _, e := range l.buf.tail(uploadBatchLimit) {
		if e.seq > l.uploadedSeq {
			batch.Entries = append(batch.Entries, e)
		}
	}
	l.uploadWG.Add(1)
	l.mu.Unlock()
	defer l.uploadWG.Done()

	if len(batch.Entries) == 0 || batch.Endpoint == "" || l.uploader == nil {
		return nil
	}
	lastSeq := batch.Entries[len(batch.Entries)-1].seq

	if err := l.uploader.UploadLogs(ctx, batch); err != nil {
		l.metrics.RecordUpload("failed")
		l.console.Warn("log upload failed",
			logger.String("endpoint", batch.Endpoint),
			logger.Int("entries", len(batch.Entries)),
			logger.Error(err))
		return err
	}

	l.mu.Lock()
	l.uploadedSeq = max(l.uploadedSeq, lastSeq)
	l.mu.Unlock()
	l.metrics.RecordUpload("fired")
	l.console.Debug("logs uploaded",
		logger.String("endpoint", batch.Endpoint),
		logger.Int("entries", len(batch.Entries)))
	return nil
}

// Flush fires a pending debounced upload immediately. It is a no-op when
// nothing is scheduled.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := l.uploadTimer != nil && l.uploadTimer.Stop()
	if pending {
		l.uploadTimer = nil
	}
	l.mu.Unlock()
	if !pending {
		return nil
	}
	return l.upload(ctx)
}

// Close stops scheduling, cancels the pending timer and waits for an
// in-flight upload to return. Logging after Close still records entries.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.uploadTimer != nil {
		l.uploadTimer.Stop()
		l.uploadTimer = nil
	}
	l.mu.Unlock()

	l.cancel()
	l.uploadWG.Wait()
}
