package output

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// streamer adapts a Renderer to beep's stereo frames. Mono graphs are
// duplicated to both sides; channels beyond the second are dropped.
type streamer struct {
	r   *Renderer
	buf []float64
}

// Streamer returns the renderer as an endless beep.Streamer. It stops once
// the renderer fails and reports the failure through Err.
func (r *Renderer) Streamer() beep.Streamer {
	return &streamer{r: r, buf: make([]float64, r.frames*r.ChannelCount())}
}

func (s *streamer) Stream(samples [][2]float64) (int, bool) {
	channels := s.r.ChannelCount()
	n := 0

	for n < len(samples) {
		want := min(len(samples)-n, len(s.buf)/channels)

		got := s.r.Read(s.buf[:want*channels])
		for i := range got {
			frame := s.buf[i*channels:]

			left, right := frame[0], frame[0]
			if channels > 1 {
				right = frame[1]
			}

			samples[n+i] = [2]float64{left, right}
		}

		n += got
		if got < want {
			break
		}
	}

	return n, n > 0
}

func (s *streamer) Err() error {
	return s.r.Err()
}

// Format returns the beep format matching r at the given precision in
// bytes per sample.
func (r *Renderer) Format(precision int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(math.Round(r.SampleRate())),
		NumChannels: min(r.ChannelCount(), 2),
		Precision:   precision,
	}
}

// WriteWAV renders frames frames of r into w as a PCM WAV file with
// precision bytes per sample (1, 2 or 3).
func WriteWAV(w io.WriteSeeker, r *Renderer, frames, precision int) error {
	if frames < 0 {
		return fmt.Errorf("output: negative frame count %d", frames)
	}

	if precision < 1 || precision > 3 {
		return errors.New("output: wav precision must be 1, 2 or 3 bytes")
	}

	if err := wav.Encode(w, beep.Take(frames, r.Streamer()), r.Format(precision)); err != nil {
		return fmt.Errorf("output: encode wav: %w", err)
	}

	return r.Err()
}

// ReadWAV decodes a PCM WAV stream into an in-memory provider. At most two
// channels are kept.
func ReadWAV(r io.Reader, loop bool) (*dspgraph.SliceProvider, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("output: decode wav: %w", err)
	}
	defer stream.Close()

	channels := min(format.NumChannels, 2)
	scale := pcmScale(format.Precision)
	samples := make([]float64, 0, stream.Len()*channels)
	buf := make([][2]float64, 512)

	for {
		n, ok := stream.Stream(buf)
		for _, frame := range buf[:n] {
			for _, v := range frame[:channels] {
				samples = append(samples, v*scale)
			}
		}

		if !ok {
			break
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("output: decode wav: %w", err)
	}

	return dspgraph.NewSliceProvider(samples, channels, float64(format.SampleRate), loop), nil
}

// pcmScale corrects wav.Decode, which divides signed samples by 2^bits-1
// while wav.Encode multiplies by 2^(bits-1)-1.
func pcmScale(precision int) float64 {
	if precision < 2 {
		return 1
	}

	bits := float64(8 * precision)

	return (math.Exp2(bits) - 1) / (math.Exp2(bits-1) - 1)
}
