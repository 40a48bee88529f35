package dates

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/afero"

	"mediasort/internal/logging"
	"mediasort/internal/media"
)

// Source records which signal produced a Bucket.
type Source string

const (
	SourceEXIF    Source = "exif"
	SourceModTime Source = "mtime"
	SourceNone    Source = "none"
)

// Bucket is a year/month library folder, or the unknown bucket.
type Bucket struct {
	Year   int
	Month  time.Month
	Known  bool
	Source Source
}

// Path renders the bucket as a relative directory. Unknown buckets use
// noDateDir.
func (b Bucket) Path(noDateDir string) string {
	if !b.Known {
		return noDateDir
	}
	return filepath.Join(fmt.Sprintf("%04d", b.Year), fmt.Sprintf("%02d", int(b.Month)))
}

func (b Bucket) String() string {
	if !b.Known {
		return "unknown"
	}
	return fmt.Sprintf("%04d/%02d", b.Year, int(b.Month))
}

// Unknown is the bucket for files without a usable date.
var Unknown = Bucket{Source: SourceNone}

// Resolver computes buckets from file metadata.
type Resolver struct {
	fs       afero.Fs
	logger   *slog.Logger
	location *time.Location
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLocation sets the zone used to bucket modification times. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.location = loc
		}
	}
}

// NewResolver builds a resolver reading through fs.
func NewResolver(fs afero.Fs, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		fs:       fs,
		logger:   logging.NewComponentLogger(logger, "dates"),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the bucket for path.
func (r *Resolver) Resolve(path string) Bucket {
	if media.CarriesEXIF(path) && r.sniffAllowsEXIF(path) {
		if taken, err := r.exifTime(path); err == nil {
			if b, ok := bucketOf(taken, SourceEXIF); ok {
				return b
			}
		} else {
			r.logger.Debug("exif date unavailable; falling back to mtime",
				logging.String(logging.FieldSourcePath, path),
				logging.Error(err),
			)
		}
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		r.logger.Debug("stat for mtime failed",
			logging.String(logging.FieldSourcePath, path),
			logging.Error(err),
		)
		return Unknown
	}
	if b, ok := bucketOf(info.ModTime().In(r.location), SourceModTime); ok {
		return b
	}
	return Unknown
}

func (r *Resolver) sniffAllowsEXIF(path string) bool {
	sniff, err := media.SniffFile(r.fs, path)
	if err != nil {
		return false
	}
	return sniff.AllowsEXIF()
}

func (r *Resolver) exifTime(path string) (taken time.Time, err error) {
	file, err := r.fs.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer file.Close()

	// goexif can panic on truncated IFDs.
	defer func() {
		if rec := recover(); rec != nil {
			taken = time.Time{}
			err = fmt.Errorf("decode exif: %v", rec)
		}
	}()

	x, err := exif.Decode(file)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode exif: %w", err)
	}
	return x.DateTime()
}

func bucketOf(t time.Time, source Source) (Bucket, bool) {
	if t.IsZero() || t.Unix() <= 0 {
		return Bucket{}, false
	}
	return Bucket{Year: t.Year(), Month: t.Month(), Known: true, Source: source}, true
}
