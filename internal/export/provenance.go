package export

import (
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

// ErrNoExif is returned by ReadProvenance when a PNG has no eXIf chunk.
var ErrNoExif = errors.New("no exif data")

// Provenance is stamped into every rendered frame as an eXIf chunk.
type Provenance struct {
	Software string
	Source   string // source file name
}

func (p *Provenance) description(frame int) string {
	return fmt.Sprintf("%s frame %d", p.Source, frame)
}

func buildExif(software, description string) ([]byte, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	ti := exif.NewTagIndex()
	ib := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	if err := ib.AddStandardWithName("Software", software); err != nil {
		return nil, fmt.Errorf("add Software: %w", err)
	}
	if err := ib.AddStandardWithName("ImageDescription", description); err != nil {
		return nil, fmt.Errorf("add ImageDescription: %w", err)
	}

	ibe := exif.NewIfdByteEncoder()
	data, err := ibe.EncodeToExif(ib)
	if err != nil {
		return nil, fmt.Errorf("encode exif: %w", err)
	}
	return data, nil
}

// ReadProvenance returns the EXIF tags of a PNG's eXIf chunk keyed by tag name.
func ReadProvenance(path string) (map[string]string, error) {
	chunks, err := readPNG(path)
	if err != nil {
		return nil, err
	}
	c, ok := findChunk(chunks, "eXIf")
	if !ok {
		return nil, ErrNoExif
	}
	tags, err := parseExif(c.data)
	if err != nil {
		return nil, fmt.Errorf("parse exif in %s: %w", path, err)
	}
	return tags, nil
}

func parseExif(data []byte) (map[string]string, error) {
	tags, _, err := exif.GetFlatExifData(data, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[tag.TagName] = fmt.Sprintf("%v", tag.Value)
	}
	return out, nil
}
