// ABOUTME: WAV body reader with trim window support
// ABOUTME: Skips the fixed header and exposes the body as an io.Reader
package wav

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// Reader reads the body of a finalized container
type Reader struct {
	Header Header

	file      *os.File
	body      *bufio.Reader
	bodyBytes int64
	remaining int64
}

// OpenReader opens path, parses the header and positions the reader at the
// start of the body. The body size is the smaller of the data-chunk size and
// the bytes actually present on disk.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.IOError(fmt.Errorf("failed to open WAV file: %w", err))
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, audio.IOError(fmt.Errorf("failed to read WAV header: %w", err))
	}

	header, err := ParseHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, audio.IOError(fmt.Errorf("failed to stat WAV file: %w", err))
	}

	body := info.Size() - HeaderSize
	if declared := int64(header.Subchunk2Size); declared < body {
		body = declared
	}

	return &Reader{
		Header:    header,
		file:      f,
		body:      bufio.NewReader(f),
		bodyBytes: body,
		remaining: body,
	}, nil
}

// Format returns the PCM format of the body
func (r *Reader) Format() audio.Format { return r.Header.PCMFormat() }

// BodyBytes returns the total body length in bytes
func (r *Reader) BodyBytes() int64 { return r.bodyBytes }

// Remaining returns the bytes left before the reader reports io.EOF
func (r *Reader) Remaining() int64 { return r.remaining }

// Window restricts the reader to the trimmed region of the body. It must be
// called before the first Read. Returns the number of bytes in the window.
func (r *Reader) Window(duration, start, end float64) (int64, error) {
	if r.remaining != r.bodyBytes {
		return 0, fmt.Errorf("window must be set before reading")
	}

	skip, limit, err := Window(r.bodyBytes, int(r.Header.BlockAlign), duration, start, end)
	if err != nil {
		return 0, err
	}

	if skip > 0 {
		if _, err := r.file.Seek(HeaderSize+skip, io.SeekStart); err != nil {
			return 0, audio.IOError(fmt.Errorf("failed to seek to trim start: %w", err))
		}
		r.body.Reset(r.file)
	}

	r.remaining = limit
	return limit, nil
}

// Rewind returns to the start of the full body, dropping any window
func (r *Reader) Rewind() error {
	if _, err := r.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return audio.IOError(fmt.Errorf("failed to rewind: %w", err))
	}
	r.body.Reset(r.file)
	r.remaining = r.bodyBytes
	return nil
}

// Read implements io.Reader over the (possibly trimmed) body
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.body.Read(p)
	r.remaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, audio.IOError(fmt.Errorf("failed to read WAV body: %w", err))
	}
	return n, err
}

// Close releases the file handle
func (r *Reader) Close() error {
	return r.file.Close()
}

// Window computes the byte range of a trimmed body. duration is the nominal
// length in any unit; start and end are offsets from each edge in the same
// unit. Both edges are rounded down to whole frames. It returns the number of
// body bytes to skip and the number of bytes to feed after the skip.
func Window(bodyBytes int64, blockAlign int, duration, start, end float64) (skip, limit int64, err error) {
	if duration <= 0 {
		return 0, 0, fmt.Errorf("invalid trim duration: %v", duration)
	}
	if start < 0 || end < 0 {
		return 0, 0, fmt.Errorf("invalid trim offsets: start=%v end=%v", start, end)
	}
	if start+end > duration {
		return 0, 0, fmt.Errorf("trim offsets %v+%v exceed duration %v", start, end, duration)
	}
	if blockAlign <= 0 {
		blockAlign = 1
	}

	bytesPerUnit := float64(bodyBytes) / duration
	align := int64(blockAlign)

	skip = int64(start*bytesPerUnit) / align * align
	tail := int64(end*bytesPerUnit) / align * align

	limit = bodyBytes - skip - tail
	if limit < 0 {
		limit = 0
	}
	return skip, limit, nil
}
