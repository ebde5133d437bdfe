package attemptlog

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pead-drift/internal/logger"
	"pead-drift/internal/research/pead"
)

const journalExt = ".jsonl"

// Journal appends every provider attempt to a daily JSON-lines file at
// {dir}/attempts/{YYYY-MM-DD}.jsonl
type Journal struct {
	dir   string
	runID string
	now   func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	zl   *zap.Logger
}

var _ pead.AttemptSink = (*Journal)(nil)

// Option configures a Journal
type Option func(*Journal)

// WithRunID tags every line with the run id
func WithRunID(id string) Option {
	return func(j *Journal) { j.runID = id }
}

// WithClock overrides the time source used for timestamps and file names
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// New creates a journal rooted at dir
func New(dir string, opts ...Option) *Journal {
	if dir == "" {
		dir = "logs"
	}
	j := &Journal{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Path returns the journal file for day
func (j *Journal) Path(day time.Time) string {
	return filepath.Join(j.dir, "attempts", day.UTC().Format("2006-01-02")+journalExt)
}

// RecordAttempt implements pead.AttemptSink. Write failures are logged, not
// returned, so a full disk never fails a run.
func (j *Journal) RecordAttempt(ctx context.Context, ticker string, at pead.Attempt) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().UTC()
	zl, err := j.loggerFor(now)
	if err != nil {
		logger.Warn(ctx, "Attempt journal unavailable", "error", err)
		return
	}

	fields := []zap.Field{
		zap.Time("time", now),
		zap.String("ticker", ticker),
		zap.String("when", at.When),
		zap.String("source", at.Source),
		zap.Bool("ok", at.OK),
	}
	if at.Reason != "" {
		fields = append(fields, zap.String("reason", at.Reason))
	}
	if j.runID != "" {
		fields = append(fields, zap.String("run_id", j.runID))
	}
	zl.Info("attempt", fields...)
}

// loggerFor returns the zap logger for now's date, rolling the file at
// midnight UTC
func (j *Journal) loggerFor(now time.Time) (*zap.Logger, error) {
	day := now.Format("2006-01-02")
	if j.zl != nil && j.day == day {
		return j.zl, nil
	}
	if err := j.closeLocked(); err != nil {
		logger.Warn(context.Background(), "Failed to close attempt journal", "day", j.day, "error", err)
	}

	path := j.Path(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zap.InfoLevel)

	j.day, j.file, j.zl = day, f, zap.New(core)
	return j.zl, nil
}

// Close flushes and closes the current journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) closeLocked() error {
	if j.zl == nil {
		return nil
	}
	_ = j.zl.Sync()
	err := j.file.Close()
	j.zl, j.file, j.day = nil, nil, ""
	return err
}

// CompressOlder gzips journal files last modified more than retentionDays
// before now and removes the originals. It returns the number of files
// compressed. now is wall-clock time, independent of the journal clock,
// since it is compared against file modification times.
func (j *Journal) CompressOlder(now time.Time, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	root := filepath.Join(j.dir, "attempts")
	cutoff := now.AddDate(0, 0, -retentionDays)
	compressed := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != journalExt {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		// a previous run compressed it but died before removing the original
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
