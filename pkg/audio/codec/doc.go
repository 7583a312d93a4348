// ABOUTME: Block codec package for transcoding finished captures
// ABOUTME: Provides the Device/Muxer contracts, the Driver loop, Opus and Ogg
// Package codec transcodes WAV captures through slot-based block encoders.
//
// A Device hands out indexed input slots, encodes asynchronously and hands
// back indexed output slots. The Driver owns the feed/drain loop: it reads
// the capture body in chunks, stamps presentation times, announces the track
// to a Muxer when the device reports a format change and stops once the
// device emits an end-of-stream buffer.
//
// Example:
//
//	d := &codec.Driver{
//	    NewDevice: func() (codec.Device, error) { return codec.NewOpusDevice(codec.OpusOptions{}), nil },
//	    NewMuxer:  func(p string) (codec.Muxer, error) { return codec.NewOggMuxer(p) },
//	}
//	out, err := d.Transcode(ctx, codec.Job{Source: "capture.wav", Target: codec.Target{Bitrate: 96000}})
package codec
