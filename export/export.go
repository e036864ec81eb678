// Package export writes run reports to their destination.
//
// A destination is a local file path, "-" for stderr, or an
// s3://bucket/key URL. The literal "{run_id}" anywhere in the destination is
// replaced with the run id so one config can serve many runs.
package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RunIDPlaceholder is replaced by the run id in destinations.
const RunIDPlaceholder = "{run_id}"

// Stdio is the destination that writes to the process's stderr.
const Stdio = "-"

// Writer stores one report payload.
type Writer interface {
	// Put writes data to the destination, replacing any previous content.
	Put(ctx context.Context, data []byte, contentType string) error
	// Location describes where Put writes, for logs.
	Location() string
}

// Options configures Open.
type Options struct {
	// Stream receives "-" writes (default os.Stderr).
	Stream io.Writer
	// S3 carries S3 client settings for s3:// destinations.
	S3 S3Config
	// S3Client overrides client construction, mainly for tests.
	S3Client PutObjectAPI
}

// Expand substitutes the run id into dest.
func Expand(dest, runID string) string {
	return strings.ReplaceAll(dest, RunIDPlaceholder, runID)
}

// Open returns the Writer for dest.
func Open(ctx context.Context, dest string, opts Options) (Writer, error) {
	switch {
	case dest == "":
		return nil, errors.New("export destination must not be empty")
	case dest == Stdio:
		w := opts.Stream
		if w == nil {
			w = os.Stderr
		}
		return &streamWriter{w: w}, nil
	case strings.HasPrefix(dest, "s3://"):
		bucket, key, err := ParseS3URL(dest)
		if err != nil {
			return nil, err
		}
		s3cfg := opts.S3
		s3cfg.Bucket = bucket
		return NewS3Writer(ctx, s3cfg, key, opts.S3Client)
	default:
		return &fileWriter{path: dest}, nil
	}
}

type streamWriter struct {
	w io.Writer
}

func (s *streamWriter) Put(_ context.Context, data []byte, _ string) error {
	if _, err := s.w.Write(data); err != nil {
		return Wrap(err, "write", Stdio)
	}
	return nil
}

func (s *streamWriter) Location() string { return "stderr" }

type fileWriter struct {
	path string
}

// Put writes through a temp file and rename so readers never see a partial report.
func (f *fileWriter) Put(_ context.Context, data []byte, _ string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Wrap(err, "mkdir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return Wrap(err, "create", f.path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Wrap(err, "write", f.path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Wrap(err, "write", f.path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return Wrap(err, "chmod", f.path)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return Wrap(err, "rename", f.path)
	}
	return nil
}

func (f *fileWriter) Location() string { return f.path }
