package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"flipbook/pkg/imgutil"
)

var (
	ErrBadSignature = errors.New("invalid PNG signature")
	ErrBadChecksum  = errors.New("PNG chunk checksum mismatch")
)

// maxChunkLen bounds a single chunk allocation.
const maxChunkLen = 1 << 28

type chunk struct {
	name string
	data []byte
}

func readSignature(r io.Reader) error {
	sig := make([]byte, len(imgutil.PNGSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, imgutil.PNGSignature) {
		return ErrBadSignature
	}
	return nil
}

// readChunk returns io.EOF only when the stream ends on a chunk boundary.
func readChunk(r io.Reader) (chunk, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return chunk{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > maxChunkLen {
		return chunk{}, fmt.Errorf("chunk length %d exceeds limit", length)
	}

	body := make([]byte, 4+int(length))
	if _, err := io.ReadFull(r, body); err != nil {
		return chunk{}, noEOF(err)
	}
	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBuf); err != nil {
		return chunk{}, noEOF(err)
	}
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(crcBuf) {
		return chunk{}, fmt.Errorf("%s: %w", body[:4], ErrBadChecksum)
	}

	return chunk{name: string(body[:4]), data: body[4:]}, nil
}

func writeChunk(w io.Writer, name string, data []byte) error {
	buf := make([]byte, 0, 12+len(data))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, name...)
	buf = append(buf, data...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf[4:]))
	_, err := w.Write(buf)
	return err
}

// readPNG returns every chunk up to and including IEND.
func readPNG(path string) ([]chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if err := readSignature(br); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var chunks []chunk
	for {
		c, err := readChunk(br)
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%s: missing IEND: %w", path, io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		chunks = append(chunks, c)
		if c.name == "IEND" {
			return chunks, nil
		}
	}
}

// insertAfterIHDR copies a PNG stream from r to w, writing extra right after
// IHDR and dropping existing chunks of the same names.
func insertAfterIHDR(r io.Reader, w io.Writer, extra []chunk) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	if err := readSignature(br); err != nil {
		return err
	}
	if _, err := bw.Write(imgutil.PNGSignature); err != nil {
		return err
	}

	replaced := make(map[string]bool, len(extra))
	for _, c := range extra {
		replaced[c.name] = true
	}

	for {
		c, err := readChunk(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if replaced[c.name] {
			continue
		}
		if err := writeChunk(bw, c.name, c.data); err != nil {
			return err
		}
		if c.name == "IHDR" {
			for _, e := range extra {
				if err := writeChunk(bw, e.name, e.data); err != nil {
					return err
				}
			}
		}
		if c.name == "IEND" {
			break
		}
	}

	return bw.Flush()
}

// isMetadataChunk reports textual, timestamp and EXIF chunks.
func isMetadataChunk(name string) bool {
	switch name {
	case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		return true
	default:
		return false
	}
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
