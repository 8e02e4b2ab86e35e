// Package source discovers the animation files a batch will convert.
package source

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Descriptor identifies one discovered source file and where its output goes.
type Descriptor struct {
	AbsPath  string
	RelDir   string // directory relative to the scan root; empty means the output root itself
	BaseName string // file name without its final extension
}

// NormalizePath converts file:// URIs to local paths. Other values are returned unchanged.
func NormalizePath(p string) string {
	if !strings.HasPrefix(p, "file://") {
		return p
	}
	u, err := url.Parse(p)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(p, "file://")
	}
	local := filepath.FromSlash(u.Path)
	// file:///C:/x parses to /C:/x
	if len(local) > 2 && (local[0] == '/' || local[0] == '\\') && local[2] == ':' {
		local = local[1:]
	}
	return local
}

// Collect expands inputs into descriptors in discovery order. Files match ext
// case-insensitively. Directories are scanned recursively, files before
// subdirectories, both in name order. Missing or unreadable paths contribute
// nothing. Duplicate inputs produce duplicate descriptors.
func Collect(inputs []string, ext string, logger *slog.Logger) []Descriptor {
	var out []Descriptor
	for _, input := range inputs {
		local := NormalizePath(input)

		info, err := os.Stat(local)
		if err != nil {
			logger.Debug("skipping input", "path", local, "error", err)
			continue
		}

		abs, err := filepath.Abs(local)
		if err != nil {
			logger.Debug("skipping input", "path", local, "error", err)
			continue
		}

		switch {
		case info.Mode().IsRegular():
			if matchExt(abs, ext) {
				out = append(out, Descriptor{AbsPath: abs, BaseName: baseName(abs)})
			}
		case info.IsDir():
			logger.Debug("scanning directory", "path", abs)
			out = scanDir(out, abs, abs, ext, logger)
		}
	}
	return out
}

func scanDir(out []Descriptor, dir, root, ext string, logger *slog.Logger) []Descriptor {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug("cannot read directory", "path", dir, "error", err)
		return out
	}

	relDir, err := filepath.Rel(root, dir)
	if err != nil || relDir == "." {
		relDir = ""
	}

	var subdirs []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, entry.Name())

		// Stat follows symlinks so linked files and directories are treated as their targets.
		info, err := os.Stat(full)
		if err != nil {
			continue
		}

		switch {
		case info.Mode().IsRegular():
			if matchExt(full, ext) {
				out = append(out, Descriptor{AbsPath: full, RelDir: relDir, BaseName: baseName(full)})
			}
		case info.IsDir():
			subdirs = append(subdirs, full)
		}
	}

	for _, sub := range subdirs {
		out = scanDir(out, sub, root, ext, logger)
	}
	return out
}

func matchExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
