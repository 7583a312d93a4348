// ABOUTME: Software Opus block codec exposing indexed input and output slots
// ABOUTME: Encodes 20ms frames on a worker goroutine, resampling to an Opus rate
package codec

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/resample"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusClockRate     = 48000
	opusFrameDuration = 20 * time.Millisecond
	opusMaxPacket     = 4000 // Max Opus packet size
	opusPreSkip       = 312  // default encoder lookahead at 48kHz
)

var (
	// ErrDeviceReleased is returned by calls after Release
	ErrDeviceReleased = errors.New("codec device released")

	errNotStarted   = errors.New("codec device not started")
	errBadSlotIndex = errors.New("invalid slot index")
)

// OpusOptions configures an OpusDevice
type OpusOptions struct {
	InputSlots  int // default 4
	OutputSlots int // default 64
	SlotSize    int // input slot capacity in bytes, default 64KiB
	Logger      *zap.Logger
}

type inputJob struct {
	index int
	size  int
	ptsUs int64
	flags Flags
}

type outputEvent struct {
	index         int
	info          BufferInfo
	formatChanged bool
}

// OpusDevice implements Device with libopus
type OpusDevice struct {
	opts   OpusOptions
	logger *zap.Logger

	target    Target
	encRate   int
	frameSize int // samples per channel per frame at encRate
	encoder   *opus.Encoder
	encode    func(pcm []int16, data []byte) (int, error)
	resampler *resample.Resampler

	inBufs  [][]byte
	inFree  chan int
	inQueue chan inputJob

	outBufs [][]byte
	outFree chan int
	events  chan outputEvent

	// blocked is signaled when the worker waits for an output slot
	blocked  chan struct{}
	progress chan struct{}
	inflight atomic.Int64

	format    OutputFormat
	formatMu  sync.Mutex
	started   bool
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// workerErr is the error that stopped the encoder worker
	errMu     sync.Mutex
	workerErr error

	// worker state
	pending   []int16
	frames    int64
	announced bool
}

// NewOpusDevice creates an unconfigured device
func NewOpusDevice(opts OpusOptions) *OpusDevice {
	if opts.InputSlots <= 0 {
		opts.InputSlots = 4
	}
	if opts.OutputSlots <= 0 {
		opts.OutputSlots = 64
	}
	if opts.SlotSize <= 0 {
		opts.SlotSize = 64 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpusDevice{
		opts:    opts,
		logger:  logger.Named("opus"),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// opusRate returns the encoder rate for a PCM rate; rates libopus does not
// accept are resampled to 48kHz
func opusRate(rate int) int {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return rate
	default:
		return opusClockRate
	}
}

// Configure validates target and creates the encoder
func (d *OpusDevice) Configure(target Target) error {
	if d.started {
		return fmt.Errorf("cannot configure a started device")
	}
	if target.MimeType != "" && target.MimeType != MimeOpus {
		return fmt.Errorf("unsupported mime type %q", target.MimeType)
	}
	if target.Channels != 1 && target.Channels != 2 {
		return fmt.Errorf("opus supports 1 or 2 channels, got %d", target.Channels)
	}
	if target.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", target.SampleRate)
	}
	if target.Bitrate != 0 && (target.Bitrate < 6000 || target.Bitrate > 510000) {
		return fmt.Errorf("opus bitrate must be 6000-510000, got %d", target.Bitrate)
	}

	encRate := opusRate(target.SampleRate)
	encoder, err := opus.NewEncoder(encRate, target.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if target.Bitrate > 0 {
		if err := encoder.SetBitrate(target.Bitrate); err != nil {
			return fmt.Errorf("failed to set opus bitrate: %w", err)
		}
	}

	d.target = target
	d.target.MimeType = MimeOpus
	d.encRate = encRate
	d.frameSize = encRate * int(opusFrameDuration/time.Millisecond) / 1000
	d.encoder = encoder
	d.encode = encoder.Encode
	if encRate != target.SampleRate {
		d.resampler = resample.New(target.SampleRate, encRate, target.Channels)
	}

	d.logger.Debug("Configured",
		zap.Int("input_rate", target.SampleRate),
		zap.Int("encoder_rate", encRate),
		zap.Int("channels", target.Channels),
		zap.Int("bitrate", target.Bitrate))
	return nil
}

// Start allocates slots and launches the encoder worker
func (d *OpusDevice) Start() error {
	if d.encoder == nil {
		return fmt.Errorf("device not configured")
	}
	if d.started {
		return nil
	}

	d.inBufs = make([][]byte, d.opts.InputSlots)
	d.inFree = make(chan int, d.opts.InputSlots)
	d.inQueue = make(chan inputJob, d.opts.InputSlots)
	for i := range d.inBufs {
		d.inBufs[i] = make([]byte, d.opts.SlotSize)
		d.inFree <- i
	}

	d.outBufs = make([][]byte, d.opts.OutputSlots)
	d.outFree = make(chan int, d.opts.OutputSlots)
	for i := range d.outBufs {
		d.outBufs[i] = make([]byte, opusMaxPacket)
		d.outFree <- i
	}
	// one extra for the format change event
	d.events = make(chan outputEvent, d.opts.OutputSlots+1)
	d.blocked = make(chan struct{}, 1)
	d.progress = make(chan struct{}, 1)

	d.started = true
	go d.run()
	return nil
}

// InputCapacity returns the input slot size in bytes
func (d *OpusDevice) InputCapacity() int { return d.opts.SlotSize }

// DequeueInput returns a free input slot. It returns StatusWouldBlock early
// when the worker is waiting for output slots to be released.
func (d *OpusDevice) DequeueInput(timeout time.Duration) (int, Status, error) {
	if !d.started {
		return -1, StatusWouldBlock, errNotStarted
	}
	if err := d.workerError(); err != nil {
		return -1, StatusWouldBlock, err
	}

	select {
	case idx := <-d.inFree:
		return idx, StatusOK, nil
	case <-d.closing:
		return -1, StatusWouldBlock, ErrDeviceReleased
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case idx := <-d.inFree:
		return idx, StatusOK, nil
	case <-d.blocked:
		return -1, StatusWouldBlock, nil
	case <-timer.C:
		return -1, StatusWouldBlock, nil
	case <-d.closing:
		return -1, StatusWouldBlock, ErrDeviceReleased
	}
}

// FillInput queues data in slot index for encoding
func (d *OpusDevice) FillInput(index int, data []byte, ptsUs int64, flags Flags) error {
	if index < 0 || index >= len(d.inBufs) {
		return errBadSlotIndex
	}
	if len(data) > len(d.inBufs[index]) {
		return fmt.Errorf("input of %d bytes exceeds slot capacity %d", len(data), len(d.inBufs[index]))
	}

	n := copy(d.inBufs[index], data)
	d.inflight.Add(1)

	select {
	case d.inQueue <- inputJob{index: index, size: n, ptsUs: ptsUs, flags: flags}:
		return nil
	case <-d.closing:
		d.inflight.Add(-1)
		return ErrDeviceReleased
	}
}

// DequeueOutput returns the next encoded packet or format change. When no
// input is in flight it returns StatusWouldBlock without waiting.
func (d *OpusDevice) DequeueOutput(timeout time.Duration) (int, BufferInfo, Status, error) {
	if !d.started {
		return -1, BufferInfo{}, StatusWouldBlock, errNotStarted
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev := <-d.events:
			return d.deliver(ev)
		case <-d.closing:
			return -1, BufferInfo{}, StatusWouldBlock, ErrDeviceReleased
		default:
		}
		if err := d.workerError(); err != nil {
			return -1, BufferInfo{}, StatusWouldBlock, err
		}

		if d.inflight.Load() == 0 && len(d.events) == 0 {
			return -1, BufferInfo{}, StatusWouldBlock, nil
		}

		if timer == nil {
			timer = time.NewTimer(timeout)
		}

		select {
		case ev := <-d.events:
			return d.deliver(ev)
		case <-d.progress:
		case <-timer.C:
			return -1, BufferInfo{}, StatusWouldBlock, nil
		case <-d.closing:
			return -1, BufferInfo{}, StatusWouldBlock, ErrDeviceReleased
		}
	}
}

func (d *OpusDevice) deliver(ev outputEvent) (int, BufferInfo, Status, error) {
	if ev.formatChanged {
		return -1, BufferInfo{}, StatusFormatChanged, nil
	}
	return ev.index, ev.info, StatusOK, nil
}

// OutputFormat returns the format announced by the last StatusFormatChanged
func (d *OpusDevice) OutputFormat() OutputFormat {
	d.formatMu.Lock()
	defer d.formatMu.Unlock()
	return d.format
}

// ReadOutput returns the packet buffer for slot index
func (d *OpusDevice) ReadOutput(index int) ([]byte, error) {
	if index < 0 || index >= len(d.outBufs) {
		return nil, errBadSlotIndex
	}
	return d.outBufs[index], nil
}

// ReleaseOutput returns slot index to the worker
func (d *OpusDevice) ReleaseOutput(index int) error {
	if index < 0 || index >= len(d.outBufs) {
		return errBadSlotIndex
	}
	select {
	case d.outFree <- index:
		return nil
	default:
		return fmt.Errorf("output slot %d released twice", index)
	}
}

// Release stops the worker. Safe to call more than once and before Start.
func (d *OpusDevice) Release() error {
	d.closeOnce.Do(func() {
		close(d.closing)
		if d.started {
			<-d.done
		}
	})
	return nil
}

func (d *OpusDevice) run() {
	defer close(d.done)

	for {
		select {
		case job := <-d.inQueue:
			finished, err := d.encodeJob(job)
			if err != nil && !errors.Is(err, ErrDeviceReleased) {
				d.logger.Error("Encoder worker stopped", zap.Error(err))
				d.errMu.Lock()
				d.workerErr = err
				d.errMu.Unlock()
			}
			d.inFree <- job.index
			d.inflight.Add(-1)
			d.signal(d.progress)
			if err != nil {
				return
			}
			if finished {
				d.logger.Debug("Encoder reached end of stream", zap.Int64("frames", d.frames))
				return
			}
		case <-d.closing:
			return
		}
	}
}

// encodeJob encodes every whole frame available after appending the job's
// samples. It reports true once the end-of-stream output has been emitted.
func (d *OpusDevice) encodeJob(job inputJob) (bool, error) {
	raw := d.inBufs[job.index][:job.size]
	samples := make([]int16, len(raw)/2)
	audio.BytesToInt16LE(samples, raw)

	if d.resampler != nil && len(samples) > 0 {
		out := make([]int16, d.resampler.OutputSamplesNeeded(len(samples)))
		samples = out[:d.resampler.Resample(samples, out)]
	}
	d.pending = append(d.pending, samples...)

	frameSamples := d.frameSize * d.target.Channels
	eos := job.flags.Has(FlagEndOfStream)

	// The final partial frame is padded with silence
	if eos && len(d.pending)%frameSamples != 0 {
		pad := frameSamples - len(d.pending)%frameSamples
		d.pending = append(d.pending, make([]int16, pad)...)
	}

	for len(d.pending) >= frameSamples {
		last := eos && len(d.pending) == frameSamples
		if err := d.encodeFrame(d.pending[:frameSamples], last); err != nil {
			return false, err
		}
		d.pending = d.pending[frameSamples:]
		if last {
			return true, nil
		}
	}

	if !eos {
		return false, nil
	}

	// End of stream on a frame boundary: terminate with an empty buffer
	if err := d.announce(); err != nil {
		return false, err
	}
	idx, err := d.acquireOutput()
	if err != nil {
		return false, err
	}
	info := BufferInfo{
		PresentationTimeUs: d.frames * int64(opusFrameDuration/time.Microsecond),
		Flags:              FlagEndOfStream,
	}
	if err := d.emit(outputEvent{index: idx, info: info}); err != nil {
		return false, err
	}
	return true, nil
}

// announce publishes the output format ahead of the first packet
func (d *OpusDevice) announce() error {
	if d.announced {
		return nil
	}

	d.formatMu.Lock()
	d.format = OutputFormat{
		MimeType:   MimeOpus,
		SampleRate: opusClockRate,
		InputRate:  d.target.SampleRate,
		Channels:   d.target.Channels,
		PreSkip:    opusPreSkip,
	}
	d.formatMu.Unlock()

	if err := d.emit(outputEvent{formatChanged: true}); err != nil {
		return err
	}
	d.announced = true
	return nil
}

func (d *OpusDevice) encodeFrame(pcm []int16, last bool) error {
	if err := d.announce(); err != nil {
		return err
	}

	idx, err := d.acquireOutput()
	if err != nil {
		return err
	}

	n, err := d.encode(pcm, d.outBufs[idx])
	if err != nil {
		d.outFree <- idx
		return fmt.Errorf("opus encode error: %w", err)
	}

	info := BufferInfo{
		Size:               n,
		PresentationTimeUs: d.frames * int64(opusFrameDuration/time.Microsecond),
	}
	if last {
		info.Flags |= FlagEndOfStream
	}
	d.frames++

	return d.emit(outputEvent{index: idx, info: info})
}

func (d *OpusDevice) workerError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.workerErr
}

func (d *OpusDevice) acquireOutput() (int, error) {
	select {
	case idx := <-d.outFree:
		return idx, nil
	default:
	}

	d.signal(d.blocked)
	select {
	case idx := <-d.outFree:
		return idx, nil
	case <-d.closing:
		return -1, ErrDeviceReleased
	}
}

func (d *OpusDevice) emit(ev outputEvent) error {
	select {
	case d.events <- ev:
		d.signal(d.progress)
		return nil
	case <-d.closing:
		return ErrDeviceReleased
	}
}

func (d *OpusDevice) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
