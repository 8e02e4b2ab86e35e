// Package render loads source animations and renders their frames.
package render

import (
	"errors"
	"image"
)

var (
	ErrUnsupported = errors.New("unsupported source format")
	ErrNoFrames    = errors.New("source has no frames")
	ErrFrameRange  = errors.New("frame index out of range")
)

// Source is a loaded animation that can render any of its frames.
// Implementations need not be safe for concurrent use.
type Source interface {
	Path() string
	FrameCount() int
	// FrameRate is the declared playback rate in frames per second.
	FrameRate() float64
	Bounds() image.Rectangle
	// RenderFrame returns frame i (0-based) fully composited. The returned
	// image is owned by the caller.
	RenderFrame(i int) (image.Image, error)
}

// Loader opens source files of one format.
type Loader interface {
	// Extension is the accepted file extension, with leading dot.
	Extension() string
	Load(path string) (Source, error)
}
