package orchestrator

import (
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

// Frames is a single-pass iterator over fixed-size, possibly overlapping
// blocks of multichannel audio. Block n starts at sample n*stepSize; blocks
// running past the end of the audio are zero padded.
type Frames struct {
	audio     [][]float32
	blockSize int
	stepSize  int
	count     int
	n         int
	block     [][]float32
}

// Segment frames audio into blocks of blockSize samples per channel,
// advancing stepSize samples per block. Both sizes must be positive.
//
// The block count is ceil(length/stepSize). Audio of zero length still
// yields one block of zeros.
func Segment(blockSize, stepSize int, audio [][]float32) *Frames {
	if blockSize <= 0 || stepSize <= 0 {
		panic("orchestrator: block and step size must be positive")
	}
	length := 0
	if len(audio) > 0 {
		length = len(audio[0])
	}
	return &Frames{
		audio:     audio,
		blockSize: blockSize,
		stepSize:  stepSize,
		count:     max(1, (length+stepSize-1)/stepSize),
	}
}

// Count is the total number of blocks the iterator yields.
func (f *Frames) Count() int { return f.count }

// Next advances to the next block and reports whether there is one.
func (f *Frames) Next() bool {
	if f.n >= f.count {
		f.block = nil
		return false
	}
	start := f.n * f.stepSize
	stop := start + f.blockSize
	block := make([][]float32, len(f.audio))
	for c, ch := range f.audio {
		if stop <= len(ch) {
			block[c] = ch[start:stop:stop]
			continue
		}
		padded := make([]float32, f.blockSize)
		if start < len(ch) {
			copy(padded, ch[start:])
		}
		block[c] = padded
	}
	f.block = block
	f.n++
	return true
}

// Block is the current block, one slice per channel. Unpadded blocks share
// memory with the source audio.
func (f *Frames) Block() [][]float32 { return f.block }

// Done reports whether the iterator is exhausted.
func (f *Frames) Done() bool { return f.n >= f.count && f.block == nil }

// ProcessInputs pairs each block of a Frames iterator with its start time.
type ProcessInputs struct {
	frames     *Frames
	sampleRate float64
	stepSize   int
	frame      int64
	current    extractor.ProcessInput
}

// NewProcessInputStream stamps the blocks of frames with the time of their
// first sample, counting stepSize frames per block.
func NewProcessInputStream(frames *Frames, sampleRate float64, stepSize int) *ProcessInputs {
	return &ProcessInputs{frames: frames, sampleRate: sampleRate, stepSize: stepSize}
}

func (p *ProcessInputs) Next() bool {
	if !p.frames.Next() {
		return false
	}
	p.current = extractor.ProcessInput{
		Timestamp:    feature.FromFrames(p.frame, p.sampleRate),
		InputBuffers: p.frames.Block(),
	}
	p.frame += int64(p.stepSize)
	return true
}

func (p *ProcessInputs) Input() extractor.ProcessInput { return p.current }

// Count is the number of blocks in the underlying frames.
func (p *ProcessInputs) Count() int { return p.frames.Count() }
