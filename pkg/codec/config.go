// Package codec implements the audio codec pipeline: the stateless G.711
// μ-law/A-law codec and the G.729A analysis-by-synthesis encoder core.
package codec

import "github.com/pkg/errors"

// Config describes the PCM format a codec is constructed for. Both codecs
// in this package reject anything other than 8 kHz mono at construction
// time, per the spec's "fail fast at codec construction" requirement.
type Config struct {
	SampleRate int
	Channels   int
}

// Validate returns an error naming the unsupported field if the config is
// not something this package's codecs can operate on.
func (c Config) Validate() error {
	if c.SampleRate != 8000 {
		return errors.Errorf("config: unsupported sample rate %d, only 8000 is supported", c.SampleRate)
	}
	if c.Channels != 1 {
		return errors.Errorf("config: unsupported channel count %d, only mono is supported", c.Channels)
	}
	return nil
}
