package deb

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// countingWriter wraps an io.Writer and counts the bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying io.Writer and increments the byte count.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// addBufferToAr writes a named byte slice as a root-owned file entry to the AR archive.
func addBufferToAr(w *ar.Writer, name string, body []byte, modTime time.Time) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: modTime,
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// compress returns a writer compressing into w with c.
func compress(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionXz:
		return xz.NewWriter(w)
	case CompressionZstd:
		return zstd.NewWriter(w)
	case CompressionGzip, "":
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	}
	return nil, fmt.Errorf("unsupported compression %q", c)
}

// decompress opens an archive member according to its name suffix.
func decompress(r io.Reader, member string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(member, ".gz"):
		return gzip.NewReader(r)
	case strings.HasSuffix(member, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case strings.HasSuffix(member, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case strings.HasSuffix(member, ".tar"):
		return io.NopCloser(r), nil
	}
	return nil, fmt.Errorf("unsupported member compression %q", member)
}
