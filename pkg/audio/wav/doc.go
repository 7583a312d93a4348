// ABOUTME: WAV container package for streaming capture files
// ABOUTME: Provides the header codec, a deferred-size writer and a body reader
// Package wav reads and writes the 44-byte RIFF/WAVE PCM container.
//
// The Writer is used for live captures whose length is unknown when the
// header is written: it writes placeholder sizes, appends the body in
// batches and patches the RIFF and data sizes once the stream ends.
//
// Example:
//
//	w, err := wav.Create("capture.wav", wav.Options{})
//	if err != nil {
//	    return err
//	}
//	w.WriteHeader(audio.NewPCM16Format(44100, 2))
//	w.Append(frames)
//	path, err := w.Finalize()
package wav
