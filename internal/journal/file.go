package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull      = errors.New("journal queue full")
	ErrClosed         = errors.New("journal writer closed")
	ErrNotStarted     = errors.New("journal writer not started")
	ErrAlreadyStarted = errors.New("journal writer already started")
)

const (
	defaultSegmentMaxBytes int64 = 128 << 20
	defaultQueueSize             = 1024
	defaultBufferSize            = 64 * 1024
	defaultFilePrefix            = "journal"
)

var defaultSegmentMaxDuration = 24 * time.Hour

// FileConfig controls the JSONL segment writer.
type FileConfig struct {
	Dir                string        `json:"dir"`
	SegmentMaxBytes    int64         `json:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration"`
	QueueSize          int           `json:"queueSize"`
	BufferSize         int           `json:"bufferSize"`
	FilePrefix         string        `json:"filePrefix"`
	FlushInterval      time.Duration `json:"flushInterval"`
	SyncInterval       time.Duration `json:"syncInterval"`
}

func (c FileConfig) withDefaults() FileConfig {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.SegmentMaxDuration == 0 {
		c.SegmentMaxDuration = defaultSegmentMaxDuration
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c FileConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid journal config: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return fmt.Errorf("invalid journal config: SegmentMaxBytes must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid journal config: QueueSize must be > 0")
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		return fmt.Errorf("invalid journal config: intervals must be >= 0")
	}
	return nil
}

// FileSink appends records to JSONL segments from a buffered queue. One
// goroutine owns the open segment; callers never block on disk I/O.
type FileSink struct {
	cfg FileConfig
	ch  chan Record
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewFileSink creates a file sink and ensures the target directory exists.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &FileSink{
		cfg: cfg,
		ch:  make(chan Record, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *FileSink) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes any buffered data.
func (w *FileSink) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *FileSink) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Append enqueues a record without blocking.
func (w *FileSink) Append(rec Record) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *FileSink) run(ctx context.Context) {
	var (
		seg         *segment
		segID       uint64
		flushC      <-chan time.Time
		syncC       <-chan time.Time
		flushTicker *time.Ticker
		syncTicker  *time.Ticker
	)

	if w.cfg.FlushInterval > 0 {
		flushTicker = time.NewTicker(w.cfg.FlushInterval)
		flushC = flushTicker.C
	}
	if w.cfg.SyncInterval > 0 {
		syncTicker = time.NewTicker(w.cfg.SyncInterval)
		syncC = syncTicker.C
	}

	defer func() {
		if flushTicker != nil {
			flushTicker.Stop()
		}
		if syncTicker != nil {
			syncTicker.Stop()
		}
		if err := closeSegment(seg); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(&seg, &segID)
			return
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(&seg, &segID, rec); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if seg != nil {
				if err := seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		case <-syncC:
			if err := syncSegment(seg); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *FileSink) drainNonBlocking(seg **segment, segID *uint64) {
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(seg, segID, rec); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *FileSink) writeRecord(seg **segment, segID *uint64, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	recordSize := int64(len(line) + 1)
	if w.shouldRotate(*seg, now, recordSize) {
		if err := closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	if _, err := (*seg).buf.Write(line); err != nil {
		return err
	}
	if err := (*seg).buf.WriteByte('\n'); err != nil {
		return err
	}
	(*seg).size += recordSize
	return nil
}

func (w *FileSink) shouldRotate(seg *segment, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if w.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	if w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration {
		return true
	}
	return false
}

func (w *FileSink) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID = *segID + 1
		name := fmt.Sprintf("%s-%s-%06d.jsonl", w.cfg.FilePrefix, ts, *segID)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func syncSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		return err
	}
	return seg.file.Sync()
}

func closeSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *FileSink) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}
