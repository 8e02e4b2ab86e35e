package export

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"flipbook/pkg/imgutil"
)

// FrameName is the file name of the n-th (1-based) frame of a sequence.
func FrameName(n int) string {
	return strconv.Itoa(n) + ".png"
}

// WriteFrame encodes img as PNG at path. A non-empty exifData is stored in an
// eXIf chunk directly after IHDR.
func WriteFrame(path string, img image.Image, exifData []byte) error {
	return writeFrame(path, img, exifData, false)
}

// writeFrame with rgba set always stores 8-bit RGBA. png.Encode picks RGB for
// opaque images, so frames of one animation could otherwise disagree.
func writeFrame(path string, img image.Image, exifData []byte, rgba bool) error {
	var buf bytes.Buffer
	encode := png.Encode
	if rgba {
		encode = encodeRGBA
	}
	if err := encode(&buf, img); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	return writeAtomic(path, func(w io.Writer) error {
		if len(exifData) == 0 {
			_, err := w.Write(buf.Bytes())
			return err
		}
		return insertAfterIHDR(&buf, w, []chunk{{name: "eXIf", data: exifData}})
	})
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".flipbook-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return replaceFile(tmp.Name(), path)
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// encodeRGBA writes img as a colour type 6 PNG with unfiltered scanlines.
func encodeRGBA(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("empty image %v", b)
	}
	m, ok := img.(*image.NRGBA)
	if !ok {
		m = image.NewNRGBA(b)
		draw.Draw(m, b, img, b.Min, draw.Src)
	}

	ihdr := make([]byte, 0, 13)
	ihdr = binary.BigEndian.AppendUint32(ihdr, uint32(b.Dx()))
	ihdr = binary.BigEndian.AppendUint32(ihdr, uint32(b.Dy()))
	ihdr = append(ihdr, 8, 6, 0, 0, 0)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	row := make([]byte, 1+4*b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := m.PixOffset(b.Min.X, y)
		copy(row[1:], m.Pix[off:off+4*b.Dx()])
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	if _, err := w.Write(imgutil.PNGSignature); err != nil {
		return err
	}
	if err := writeChunk(w, "IHDR", ihdr); err != nil {
		return err
	}
	if err := writeChunk(w, "IDAT", idat.Bytes()); err != nil {
		return err
	}
	return writeChunk(w, "IEND", nil)
}
