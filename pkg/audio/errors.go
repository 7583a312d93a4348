// ABOUTME: Error taxonomy shared by capture and transcode components
// ABOUTME: Sentinel errors are matched with errors.Is
package audio

import "errors"

var (
	// ErrUnsupportedFormat is returned when the host offers a non-PCM16 stream
	ErrUnsupportedFormat = errors.New("unsupported input format")

	// ErrFormatLocked is returned when reconfiguring while a capture is armed
	ErrFormatLocked = errors.New("format locked by armed capture, reset required")

	// ErrNotConfigured is returned when capture is armed before configure
	ErrNotConfigured = errors.New("not configured")

	// ErrNoActiveCapture is returned when disarming without an armed session
	ErrNoActiveCapture = errors.New("no active capture")

	// ErrIO wraps disk, permission and space failures
	ErrIO = errors.New("i/o error")

	// ErrInvalidEncoderParameters is returned before any file is touched
	ErrInvalidEncoderParameters = errors.New("invalid encoder parameters")

	// ErrUnsupportedTargetFormat is returned when a codec rejects its configuration
	ErrUnsupportedTargetFormat = errors.New("unsupported target format")

	// ErrCodecTimeout is returned when the codec retry budget is exhausted
	ErrCodecTimeout = errors.New("codec timeout")
)

// IOError tags err as ErrIO while keeping the cause matchable
func IOError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrIO, err)
}
