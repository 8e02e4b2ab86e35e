package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"flipbook/internal/render"
)

// SequenceTask renders frames of a source to numbered PNG files in a directory.
type SequenceTask struct {
	src    render.Source
	dir    string
	frames []int // nil means every frame
	opts   Options
}

// NewSequence exports every frame of src into dir as 1.png, 2.png, ...
func NewSequence(src render.Source, dir string, opts Options) *SequenceTask {
	return &SequenceTask{src: src, dir: dir, opts: opts}
}

// NewSingleFrame exports only frame (0-based) of src into dir, named by its
// position in the full sequence.
func NewSingleFrame(src render.Source, dir string, frame int, opts Options) *SequenceTask {
	return &SequenceTask{src: src, dir: dir, frames: []int{frame}, opts: opts}
}

func (t *SequenceTask) Dir() string { return t.dir }

func (t *SequenceTask) Run(ctx context.Context, progress ProgressFunc) Outcome {
	log := t.opts.logger()
	frames := t.frames
	if frames == nil {
		frames = make([]int, t.src.FrameCount())
		for i := range frames {
			frames[i] = i
		}
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return Outcome{Code: ResultWriteFailed, OutputPath: t.dir, Err: err}
	}

	for n, i := range frames {
		if err := ctx.Err(); err != nil {
			return Outcome{Code: ResultCanceled, OutputPath: t.dir, Frames: n, Err: err}
		}

		img, err := t.src.RenderFrame(i)
		if err != nil {
			return Outcome{Code: ResultRenderFailed, OutputPath: t.dir, Frames: n, Err: err}
		}

		var exifData []byte
		if t.opts.Provenance != nil {
			exifData, err = buildExif(t.opts.Provenance.Software, t.opts.Provenance.description(i+1))
			if err != nil {
				log.Warn("cannot build frame provenance", "frame", i+1, "error", err)
				exifData = nil
			}
		}

		path := filepath.Join(t.dir, FrameName(i+1))
		if err := writeFrame(path, img, exifData, t.opts.rgba); err != nil {
			return Outcome{Code: ResultWriteFailed, OutputPath: t.dir, Frames: n, Err: fmt.Errorf("frame %d: %w", i+1, err)}
		}

		if progress != nil {
			progress(float64(n+1) / float64(len(frames)))
		}
	}

	log.Debug("sequence written", "dir", t.dir, "frames", len(frames))
	t.opts.reveal(t.dir)
	return Outcome{Code: ResultOK, OutputPath: t.dir, Frames: len(frames)}
}
