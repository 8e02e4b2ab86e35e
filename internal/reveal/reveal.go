// Package reveal opens exported files and directories in the desktop file
// manager.
package reveal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var ErrUnsupported = errors.New("reveal not supported on this platform")

// Command returns the launcher invocation for path on goos.
func Command(goos, path string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{"-R", path}, nil
	case "windows":
		return "explorer", []string{"/select," + path}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{path}, nil
	default:
		return "", nil, fmt.Errorf("%s: %w", goos, ErrUnsupported)
	}
}

// Open shows path in the platform file manager. It does not wait for the
// launcher to exit.
func Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	name, args, err := Command(runtime.GOOS, path)
	if err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}
