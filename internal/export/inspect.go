package export

import (
	"encoding/binary"
	"fmt"
)

// Info describes an exported PNG or APNG.
type Info struct {
	Animated   bool
	Width      int
	Height     int
	Frames     int
	DelayNum   int
	DelayDen   int
	Metadata   []string // names of textual/EXIF chunks, in file order
	Provenance map[string]string
}

// Inspect reads the chunk structure of a PNG or APNG file.
func Inspect(path string) (Info, error) {
	info := Info{Frames: 1}

	chunks, err := readPNG(path)
	if err != nil {
		return info, err
	}

	ihdr, ok := findChunk(chunks, "IHDR")
	if !ok || len(ihdr.data) < 8 {
		return info, fmt.Errorf("%s: missing IHDR", path)
	}
	info.Width = int(binary.BigEndian.Uint32(ihdr.data[0:4]))
	info.Height = int(binary.BigEndian.Uint32(ihdr.data[4:8]))

	seenFCTL := false
	for _, c := range chunks {
		switch {
		case c.name == "acTL" && len(c.data) >= 8:
			info.Animated = true
			info.Frames = int(binary.BigEndian.Uint32(c.data[0:4]))
		case c.name == "fcTL" && len(c.data) >= 26 && !seenFCTL:
			seenFCTL = true
			info.DelayNum = int(binary.BigEndian.Uint16(c.data[20:22]))
			info.DelayDen = int(binary.BigEndian.Uint16(c.data[22:24]))
		case isMetadataChunk(c.name):
			info.Metadata = append(info.Metadata, c.name)
			if c.name == "eXIf" && info.Provenance == nil {
				if tags, err := parseExif(c.data); err == nil {
					info.Provenance = tags
				}
			}
		}
	}

	return info, nil
}
