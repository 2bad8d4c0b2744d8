// Package codec wraps Opus encoding and decoding behind small interfaces so
// the capture and playback schedulers can be exercised with fakes in tests.
package codec

import "gopkg.in/hraban/opus.v2"

// OpusMaxPacketBytes is the largest Opus packet RFC 6716 allows.
const OpusMaxPacketBytes = 1275

// Encoder abstracts an Opus encoder.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
	SetBitrate(bitrate int) error
	SetComplexity(complexity int) error
	SetInBandFEC(fec bool) error
	SetPacketLossPerc(lossPerc int) error
}

// Decoder abstracts an Opus decoder. DecodePLC is the concealment path the
// playback scheduler takes for a missing frame; DecodeFEC recovers a lost
// frame from the in-band FEC data embedded in its successor.
type Decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
	DecodeFEC(data []byte, pcm []int16) error
	DecodePLC(pcm []int16) error
}

// NewEncoder builds an Opus encoder at the given sample rate and channel
// count, tuned for general audio with complexity 9 and in-band FEC so the
// receiver can conceal single lost packets.
func NewEncoder(sampleRate, channels, bitrate int) (Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, err
	}
	if err := enc.SetComplexity(9); err != nil {
		return nil, err
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, err
	}
	if err := enc.SetPacketLossPerc(5); err != nil {
		return nil, err
	}
	return enc, nil
}

// NewDecoder builds an Opus decoder at the given sample rate and channel
// count.
func NewDecoder(sampleRate, channels int) (Decoder, error) {
	return opus.NewDecoder(sampleRate, channels)
}
