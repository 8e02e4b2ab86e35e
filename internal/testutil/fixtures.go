// Package testutil builds on-disk fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

// Palette used by generated GIFs. Index 0 is transparent.
var Palette = color.Palette{
	color.RGBA{},
	color.RGBA{R: 0xff, A: 0xff},
	color.RGBA{G: 0xff, A: 0xff},
	color.RGBA{B: 0xff, A: 0xff},
}

// GIFBytes encodes an animated size x size GIF with the given number of
// frames. Frame i is filled with palette entry 1+i%3; delay is in 1/100 s.
func GIFBytes(t *testing.T, frames, size, delay int) []byte {
	t.Helper()

	imgs := make([]*image.Paletted, frames)
	for i := range imgs {
		imgs[i] = SolidFrame(size, uint8(1+i%3))
	}
	return EncodeGIF(t, delay, imgs...)
}

// SolidFrame is a size x size frame filled with palette entry idx.
func SolidFrame(size int, idx uint8) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, size, size), Palette)
	for p := range img.Pix {
		img.Pix[p] = idx
	}
	return img
}

// EncodeGIF encodes frames as one animation with a fixed delay and no disposal.
func EncodeGIF(t *testing.T, delay int, frames ...*image.Paletted) []byte {
	t.Helper()

	g := &gif.GIF{Config: image.Config{Width: frames[0].Rect.Dx(), Height: frames[0].Rect.Dy()}}
	for _, img := range frames {
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, delay)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

// WriteGIF writes GIFBytes to path, creating parent directories.
func WriteGIF(t *testing.T, path string, frames, size, delay int) {
	t.Helper()
	WriteFile(t, path, GIFBytes(t, frames, size, delay))
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
