// Package fileutil provides path, formatting and cleanup helpers for the
// narrator's output files.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envCacheDir     = "NARRATOR_CACHE_DIR"
	envAppData      = "APPDATA"
	envTemp         = "TEMP"
	envXDGCacheHome = "XDG_CACHE_HOME"
)

// OS-specific constants.
const (
	osWindows = "windows"
	osDarwin  = "darwin"
)

const (
	appName               = "voice-narrator"
	cacheDirName          = "cache"
	voicesDirName         = "voices"
	libraryCaches         = "Library/Caches"
	dotCache              = ".cache"
	defaultDirPermissions = 0o750
)

// ErrVoicePromptNotFound is returned when a reference clip cannot be located.
var ErrVoicePromptNotFound = errors.New("voice prompt not found")

func windowsCacheDir() string {
	if appData := os.Getenv(envAppData); appData != "" {
		return filepath.Join(appData, appName, cacheDirName)
	}

	return filepath.Join(os.Getenv(envTemp), appName, cacheDirName)
}

func darwinCacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, cacheDirName)
	}

	return filepath.Join(homeDir, libraryCaches, appName)
}

func unixCacheDir() string {
	if xdgCache := os.Getenv(envXDGCacheHome); xdgCache != "" {
		return filepath.Join(xdgCache, appName)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, cacheDirName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// CacheDir returns the application's cache directory, honouring
// NARRATOR_CACHE_DIR and the platform conventions.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	switch runtime.GOOS {
	case osWindows:
		return windowsCacheDir()
	case osDarwin:
		return darwinCacheDir()
	default:
		return unixCacheDir()
	}
}

// EnsureDir creates path and its parents if they do not exist.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// resolveSinglePath reports whether a regular file exists at path and returns
// its absolute form. Errors other than "not found" are returned.
func resolveSinglePath(path string) (string, bool, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("error checking path %q: %w", path, statErr)
	}

	if info.IsDir() {
		return "", false, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("could not resolve absolute path for %q: %w", path, err)
	}

	return absPath, true, nil
}

// FindVoicePrompt resolves a reference clip by checking, in order, the path
// as given, ./voices/<name> and <cache>/voices/<name>.
func FindVoicePrompt(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty path", ErrVoicePromptNotFound)
	}

	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = append(candidates,
			filepath.Join(voicesDirName, name),
			filepath.Join(CacheDir(), voicesDirName, name),
		)
	}

	for _, candidate := range candidates {
		resolved, found, err := resolveSinglePath(candidate)
		if err != nil {
			return "", err
		}

		if found {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrVoicePromptNotFound, name)
}
