package render

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"

	"flipbook/pkg/imgutil"
)

// defaultGIFRate is used when every frame declares a zero delay.
const defaultGIFRate = 10.0

// GIFLoader loads animated GIFs.
type GIFLoader struct{}

func (GIFLoader) Extension() string { return ".gif" }

func (GIFLoader) Load(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kind, err := imgutil.SniffReader(f)
	if err != nil {
		return nil, fmt.Errorf("sniff %s: %w", path, err)
	}
	if kind != imgutil.KindGIF {
		return nil, fmt.Errorf("%s is %s: %w", path, kind, ErrUnsupported)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, frame := range g.Image {
			bounds = bounds.Union(frame.Bounds())
		}
	}

	return &gifSource{path: path, g: g, bounds: bounds}, nil
}

type gifSource struct {
	path   string
	g      *gif.GIF
	bounds image.Rectangle

	canvas  *image.NRGBA
	saved   *image.NRGBA // canvas before a DisposalPrevious frame
	next    int          // index of the next frame to composite
	dispose byte
	dirty   image.Rectangle
}

func (s *gifSource) Path() string            { return s.path }
func (s *gifSource) FrameCount() int         { return len(s.g.Image) }
func (s *gifSource) Bounds() image.Rectangle { return s.bounds }

func (s *gifSource) FrameRate() float64 {
	total := 0
	for _, d := range s.g.Delay {
		total += d
	}
	if total <= 0 {
		return defaultGIFRate
	}
	return 100 * float64(len(s.g.Delay)) / float64(total)
}

// RenderFrame composites frames in order. Requests for an earlier frame restart from frame 0.
func (s *gifSource) RenderFrame(i int) (image.Image, error) {
	if i < 0 || i >= len(s.g.Image) {
		return nil, fmt.Errorf("frame %d of %d: %w", i, len(s.g.Image), ErrFrameRange)
	}
	if s.canvas == nil || i < s.next {
		s.canvas = image.NewNRGBA(s.bounds)
		s.saved = nil
		s.next = 0
		s.dispose = 0
	}

	for s.next <= i {
		s.composite(s.next)
		s.next++
	}

	out := image.NewNRGBA(s.bounds)
	copy(out.Pix, s.canvas.Pix)
	return out, nil
}

func (s *gifSource) composite(k int) {
	switch s.dispose {
	case gif.DisposalBackground:
		draw.Draw(s.canvas, s.dirty, image.Transparent, image.Point{}, draw.Src)
	case gif.DisposalPrevious:
		if s.saved != nil {
			copy(s.canvas.Pix, s.saved.Pix)
		}
	}

	frame := s.g.Image[k]
	var disposal byte
	if k < len(s.g.Disposal) {
		disposal = s.g.Disposal[k]
	}
	if disposal == gif.DisposalPrevious {
		if s.saved == nil {
			s.saved = image.NewNRGBA(s.bounds)
		}
		copy(s.saved.Pix, s.canvas.Pix)
	}

	draw.Draw(s.canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
	s.dispose = disposal
	s.dirty = frame.Bounds()
}
