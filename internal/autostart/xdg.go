//go:build !windows

package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Off Windows the entry is an XDG autostart desktop file.

func desktopPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "autostart", strings.ToLower(name)+".desktop"), nil
}

func IsEnabled(name string) (bool, error) {
	path, err := desktopPath(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func Enable(e Entry) error {
	path, err := desktopPath(e.Name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	content := fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\nX-GNOME-Autostart-enabled=true\n", e.Name, e.Command())
	return os.WriteFile(path, []byte(content), 0o644)
}

func Disable(name string) error {
	path, err := desktopPath(name)
	if err != nil {
		return err
	}

	if err = os.Remove(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
