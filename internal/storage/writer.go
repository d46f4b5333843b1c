package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RecordStore persists audit records. *DB is the production implementation.
type RecordStore interface {
	LogRequest(ctx context.Context, rec *AuditRecord) error
}

// AuditWriter moves audit inserts off the request path. Records are
// buffered and written by a single goroutine with retry; when the buffer is
// full new records are dropped rather than delaying a response.
type AuditWriter struct {
	store RecordStore
	ch    chan *AuditRecord
	wg    sync.WaitGroup
	done  chan struct{}
	once  sync.Once

	backoffBase time.Duration
}

func NewAuditWriter(store RecordStore, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &AuditWriter{
		store:       store,
		ch:          make(chan *AuditRecord, bufferSize),
		done:        make(chan struct{}),
		backoffBase: 100 * time.Millisecond,
	}
}

func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

func (w *AuditWriter) Log(rec *AuditRecord) {
	select {
	case w.ch <- rec:
	default:
		log.Warn().Str("audit_id", rec.ID).Str("request_id", rec.RequestID).Msg("audit buffer full, dropping log entry")
	}
}

// Flush stops the writer and waits up to timeout for buffered records.
func (w *AuditWriter) Flush(timeout time.Duration) {
	w.once.Do(func() { close(w.done) })

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit writer flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.ch:
			w.writeWithRetry(rec)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case rec := <-w.ch:
					w.writeWithRetry(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(rec *AuditRecord) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.LogRequest(ctx, rec)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * w.backoffBase
			log.Warn().
				Err(err).
				Str("audit_id", rec.ID).
				Str("request_id", rec.RequestID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("audit_id", rec.ID).
				Str("request_id", rec.RequestID).
				Msg("audit write failed permanently after retries")
		}
	}
}
