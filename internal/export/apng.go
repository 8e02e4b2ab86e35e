package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flipbook/pkg/imgutil"
)

var (
	ErrNotSequence   = errors.New("first frame name is not numbered")
	ErrFrameMismatch = errors.New("frame header differs from first frame")
)

const maxDelayDen = 0xffff

// Assemble builds an APNG at outputPath from the numbered sequence starting
// at firstFramePath (n.png, n+1.png, ... until a number is missing). Every
// frame is shown for 1/frameRate seconds and the animation loops forever.
func Assemble(outputPath, firstFramePath string, frameRate int) error {
	paths, err := sequenceFrom(firstFramePath)
	if err != nil {
		return err
	}
	if frameRate < 1 {
		frameRate = 1
	}
	if frameRate > maxDelayDen {
		frameRate = maxDelayDen
	}

	anchor, err := readPNG(paths[0])
	if err != nil {
		return err
	}
	ihdr, ok := findChunk(anchor, "IHDR")
	if !ok || len(ihdr.data) < 8 {
		return fmt.Errorf("%s: missing IHDR", paths[0])
	}
	plte, hasPLTE := findChunk(anchor, "PLTE")

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	return writeAtomic(outputPath, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if _, err := bw.Write(imgutil.PNGSignature); err != nil {
			return err
		}
		if err := writeChunk(bw, "IHDR", ihdr.data); err != nil {
			return err
		}
		if err := writeChunk(bw, "acTL", actl(len(paths), 0)); err != nil {
			return err
		}
		// Palette, transparency and the anchor frame's EXIF apply to the whole animation.
		for _, c := range anchor {
			switch c.name {
			case "PLTE", "tRNS", "eXIf":
				if err := writeChunk(bw, c.name, c.data); err != nil {
					return err
				}
			}
		}

		var seq uint32
		for i, path := range paths {
			chunks := anchor
			if i > 0 {
				if chunks, err = readPNG(path); err != nil {
					return err
				}
				if err := checkFrame(path, chunks, ihdr, plte, hasPLTE); err != nil {
					return err
				}
			}

			if err := writeChunk(bw, "fcTL", fctl(seq, ihdr.data, frameRate)); err != nil {
				return err
			}
			seq++

			for _, c := range chunks {
				if c.name != "IDAT" {
					continue
				}
				if i == 0 {
					err = writeChunk(bw, "IDAT", c.data)
				} else {
					err = writeChunk(bw, "fdAT", append(binary.BigEndian.AppendUint32(nil, seq), c.data...))
					seq++
				}
				if err != nil {
					return err
				}
			}
		}

		if err := writeChunk(bw, "IEND", nil); err != nil {
			return err
		}
		return bw.Flush()
	})
}

func sequenceFrom(first string) ([]string, error) {
	dir, name := filepath.Split(first)
	ext := filepath.Ext(name)
	start, err := strconv.Atoi(strings.TrimSuffix(name, ext))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", first, ErrNotSequence)
	}
	if _, err := os.Stat(first); err != nil {
		return nil, err
	}

	var paths []string
	for n := start; ; n++ {
		p := filepath.Join(dir, strconv.Itoa(n)+ext)
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func checkFrame(path string, chunks []chunk, ihdr, plte chunk, hasPLTE bool) error {
	h, ok := findChunk(chunks, "IHDR")
	if !ok || !bytes.Equal(h.data, ihdr.data) {
		return fmt.Errorf("%s: %w", path, ErrFrameMismatch)
	}
	if p, ok := findChunk(chunks, "PLTE"); ok != hasPLTE || (ok && !bytes.Equal(p.data, plte.data)) {
		return fmt.Errorf("%s: palette: %w", path, ErrFrameMismatch)
	}
	return nil
}

func findChunk(chunks []chunk, name string) (chunk, bool) {
	for _, c := range chunks {
		if c.name == name {
			return c, true
		}
	}
	return chunk{}, false
}

func actl(frames, plays int) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(frames))
	return binary.BigEndian.AppendUint32(b, uint32(plays))
}

// fctl covers the full canvas; dispose none, blend source.
func fctl(seq uint32, ihdr []byte, frameRate int) []byte {
	b := binary.BigEndian.AppendUint32(make([]byte, 0, 26), seq)
	b = append(b, ihdr[0:8]...) // width, height
	b = binary.BigEndian.AppendUint32(b, 0)
	b = binary.BigEndian.AppendUint32(b, 0)
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(frameRate))
	return append(b, 0, 0)
}
