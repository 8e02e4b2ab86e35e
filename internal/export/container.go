package export

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"flipbook/internal/render"
)

// sequenceShare is the part of container progress spent rendering frames.
const sequenceShare = 0.9

// ContainerTask renders a source to a hidden temporary sequence next to the
// output file, assembles the APNG from it and removes the sequence.
type ContainerTask struct {
	src     render.Source
	outPath string
	opts    Options
}

// NewContainer exports src as an APNG at outPath.
func NewContainer(src render.Source, outPath string, opts Options) *ContainerTask {
	return &ContainerTask{src: src, outPath: outPath, opts: opts}
}

// TempDir is the hidden sibling directory holding the intermediate sequence.
func TempDir(outPath string) string {
	base := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	return filepath.Join(filepath.Dir(outPath), "."+base+"_frames")
}

func (t *ContainerTask) Run(ctx context.Context, progress ProgressFunc) Outcome {
	log := t.opts.logger()
	tmp := TempDir(t.outPath)
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warn("cannot remove frame directory", "dir", tmp, "error", err)
		}
	}()

	seqOpts := t.opts
	seqOpts.Reveal = false
	seqOpts.rgba = true
	seq := NewSequence(t.src, tmp, seqOpts)

	res := seq.Run(ctx, func(p float64) {
		if progress != nil {
			progress(p * sequenceShare)
		}
	})
	if res.Code != ResultOK {
		res.OutputPath = t.outPath
		return res
	}

	fps := int(t.src.FrameRate())
	if math.IsNaN(t.src.FrameRate()) {
		fps = 0
	}
	log.Debug("assembling apng", "out", t.outPath, "frames", res.Frames, "fps", fps)

	if err := Assemble(t.outPath, filepath.Join(tmp, FrameName(1)), fps); err != nil {
		return Outcome{Code: ResultAssembleFailed, OutputPath: t.outPath, Frames: res.Frames, Err: err}
	}
	if progress != nil {
		progress(1)
	}

	t.opts.reveal(t.outPath)
	return Outcome{Code: ResultOK, OutputPath: t.outPath, Frames: res.Frames}
}
