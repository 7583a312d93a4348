// ABOUTME: Streaming WAV writer for live captures of unknown length
// ABOUTME: Batches small appends and patches header sizes on finalize
package wav

import (
	"errors"
	"fmt"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// DefaultBatchSize is the accumulator size that triggers a write-through
const DefaultBatchSize = 4096

var (
	// ErrAlreadyFinalized is returned by a second Finalize or an Append after Finalize
	ErrAlreadyFinalized = errors.New("wav writer already finalized")

	// ErrHeaderWritten is returned by a second WriteHeader
	ErrHeaderWritten = errors.New("wav header already written")

	// ErrBodyTooLarge is returned when the body would overflow the 32-bit size fields
	ErrBodyTooLarge = errors.New("wav body exceeds 4 GiB limit")
)

// Options configures a Writer
type Options struct {
	// BatchSize is the number of accumulated bytes that forces a write (default 4096)
	BatchSize int
}

// Writer is a two-phase container writer: streaming append, then
// random-access patch of the size fields once the body length is known.
// It is not safe for concurrent use.
type Writer struct {
	path      string
	file      *os.File
	acc       []byte
	batchSize int

	headerWritten bool
	finalized     bool
	bodyBytes     int64
}

// Create creates or truncates path for writing
func Create(path string, opts Options) (*Writer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, audio.IOError(fmt.Errorf("failed to create WAV file: %w", err))
	}

	return &Writer{
		path:      path,
		file:      f,
		acc:       make([]byte, 0, opts.BatchSize*2),
		batchSize: opts.BatchSize,
	}, nil
}

// Path returns the destination path
func (w *Writer) Path() string { return w.path }

// BodyBytes returns the number of body bytes appended so far
func (w *Writer) BodyBytes() int64 { return w.bodyBytes }

// Append buffers p. Once the header is written and the accumulator exceeds
// the batch size, the accumulated bytes are written through to the file.
// Nothing is buffered when p would take the body past MaxBodyBytes.
func (w *Writer) Append(p []byte) error {
	if w.finalized {
		return ErrAlreadyFinalized
	}
	if w.bodyBytes+int64(len(p)) > MaxBodyBytes {
		return fmt.Errorf("%w: %d bytes captured, %d more requested", ErrBodyTooLarge, w.bodyBytes, len(p))
	}

	w.acc = append(w.acc, p...)
	w.bodyBytes += int64(len(p))

	if w.headerWritten && len(w.acc) > w.batchSize {
		return w.flush()
	}
	return nil
}

// WriteHeader writes the fixed header. The size fields are computed from the
// bytes accumulated so far and are placeholders until Finalize patches them.
func (w *Writer) WriteHeader(format audio.Format) error {
	if w.finalized {
		return ErrAlreadyFinalized
	}
	if w.headerWritten {
		return ErrHeaderWritten
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid header format: %w", err)
	}

	header, _ := NewHeader(format, uint32(len(w.acc))).MarshalBinary()
	if _, err := w.file.Write(header); err != nil {
		return audio.IOError(fmt.Errorf("failed to write WAV header: %w", err))
	}

	w.headerWritten = true
	return nil
}

// Finalize flushes remaining bytes, closes the append stream, reopens the
// file for random access and patches the RIFF and data sizes. It may be
// called once; on I/O failure the file keeps its provisional header and must
// be treated as corrupt.
func (w *Writer) Finalize() (string, error) {
	if w.finalized {
		return "", ErrAlreadyFinalized
	}
	w.finalized = true

	if !w.headerWritten {
		w.file.Close()
		return "", fmt.Errorf("cannot finalize %s: header not written", w.path)
	}

	if err := w.flush(); err != nil {
		w.file.Close()
		return "", err
	}
	if err := w.file.Close(); err != nil {
		return "", audio.IOError(fmt.Errorf("failed to close WAV file: %w", err))
	}

	f, err := os.OpenFile(w.path, os.O_RDWR, 0)
	if err != nil {
		return "", audio.IOError(fmt.Errorf("failed to reopen WAV file: %w", err))
	}

	if err := patchSizes(f, w.bodyBytes); err != nil {
		f.Close()
		return "", audio.IOError(err)
	}
	if err := f.Close(); err != nil {
		return "", audio.IOError(fmt.Errorf("failed to close patched WAV file: %w", err))
	}

	return w.path, nil
}

// Abort closes the file without flushing or patching. Used to release the
// handle after a capture-path failure.
func (w *Writer) Abort() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	w.acc = w.acc[:0]
	if err := w.file.Close(); err != nil {
		return audio.IOError(fmt.Errorf("failed to close WAV file: %w", err))
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.acc) == 0 {
		return nil
	}
	if _, err := w.file.Write(w.acc); err != nil {
		return audio.IOError(fmt.Errorf("failed to write WAV data: %w", err))
	}
	w.acc = w.acc[:0]
	return nil
}
