package audio

import (
	"io"
	"time"
)

// PCM layout used throughout the playback pipeline. Discord voice expects
// 48 kHz stereo Opus in 20 ms frames.
const (
	// SampleRate is the PCM sample rate in Hz.
	SampleRate = 48000

	// Channels is the number of interleaved PCM channels.
	Channels = 2

	// FrameSamples is the number of samples per channel in one 20 ms frame.
	FrameSamples = 960

	// FrameBytes is the size of one frame of signed 16-bit PCM.
	FrameBytes = FrameSamples * Channels * 2

	// FrameDuration is the wall-clock length of one frame.
	FrameDuration = 20 * time.Millisecond
)

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport: read from a decoded [Stream],
// paced by a [Player] and encoded by the platform adapter.
type AudioFrame struct {
	// PCM audio data. Sample rate and channel count are determined by the pipeline config.
	Data []byte

	// SampleRate in Hz (48000 for Discord Opus).
	SampleRate int

	// Channels: 2 for stereo Discord output.
	Channels int

	// Timestamp marks the frame position relative to stream start.
	Timestamp time.Duration
}

// Stream is a decoded audio source: signed 16-bit little-endian PCM at
// [SampleRate] with [Channels] interleaved channels. Closing the stream
// releases the decoder behind it.
type Stream interface {
	io.Reader
	io.Closer
}
