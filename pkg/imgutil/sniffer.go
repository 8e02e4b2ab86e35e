package imgutil

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Kind identifies an image container flipbook can read or write.
type Kind int

const (
	KindUnknown Kind = iota
	KindGIF
	KindPNG
)

func (k Kind) String() string {
	switch k {
	case KindGIF:
		return "gif"
	case KindPNG:
		return "png"
	default:
		return "unknown"
	}
}

var (
	PNGSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	gif87Sig     = []byte("GIF87a")
	gif89Sig     = []byte("GIF89a")
)

// ErrShortHeader is returned when fewer than 8 bytes are available.
var ErrShortHeader = errors.New("header too short")

// DetectHeader inspects the first 8 bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < 8 {
		return KindUnknown, ErrShortHeader
	}

	if bytes.HasPrefix(header, PNGSignature) {
		return KindPNG, nil
	}
	if bytes.HasPrefix(header, gif89Sig) || bytes.HasPrefix(header, gif87Sig) {
		return KindGIF, nil
	}

	return KindUnknown, nil
}

// SniffFile reads the first 8 bytes of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads the first 8 bytes from r and determines its type.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return KindUnknown, ErrShortHeader
		}
		return KindUnknown, err
	}

	return DetectHeader(header)
}
