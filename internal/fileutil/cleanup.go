package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const extWAV = ".wav"

// Report section headers.
const (
	reportHeader        = "=== Audio Cleanup ==="
	reportFilesRemoved  = "Removed:"
	reportFilesKept     = "Kept:"
	reportErrors        = "Errors:"
	reportHeaderSummary = "=== Summary ==="
	listItemFormat      = "  - %s\n"
)

// CleanupReport lists what a cleanup pass removed and left behind.
type CleanupReport struct {
	Dir          string
	RemovedFiles []string
	KeptFiles    []string
	KeptDirs     []string
	FreedBytes   int64
	Errors       []string
}

// IsWAV reports whether name has a .wav extension, ignoring case.
func IsWAV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), extWAV)
}

// CleanAudio removes every regular .wav file directly inside dir. Other files
// and subdirectories are left untouched. A missing dir is not an error.
func CleanAudio(dir string) (*CleanupReport, error) {
	report := &CleanupReport{Dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}

		return nil, fmt.Errorf("failed to read output directory '%s': %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()

		switch {
		case entry.IsDir():
			report.KeptDirs = append(report.KeptDirs, name)
		case !entry.Type().IsRegular() || !IsWAV(name):
			report.KeptFiles = append(report.KeptFiles, name)
		default:
			removeFile(report, dir, entry)
		}
	}

	if len(report.Errors) > 0 {
		return report, fmt.Errorf("failed to remove %d file(s) from '%s'", len(report.Errors), dir)
	}

	return report, nil
}

func removeFile(report *CleanupReport, dir string, entry os.DirEntry) {
	var size int64
	if info, err := entry.Info(); err == nil {
		size = info.Size()
	}

	err := os.Remove(filepath.Join(dir, entry.Name()))
	if err != nil {
		report.Errors = append(report.Errors, err.Error())

		return
	}

	report.RemovedFiles = append(report.RemovedFiles, entry.Name())
	report.FreedBytes += size
}

// PrintCleanupReport writes a human-readable report to w.
func PrintCleanupReport(w io.Writer, report *CleanupReport) {
	_, _ = fmt.Fprintln(w, reportHeader)
	_, _ = fmt.Fprintf(w, "Directory: %s\n\n", report.Dir)

	printSection(w, reportFilesRemoved, report.RemovedFiles)
	printSection(w, reportFilesKept, append(append([]string{}, report.KeptFiles...), withSlash(report.KeptDirs)...))
	printSection(w, reportErrors, report.Errors)

	_, _ = fmt.Fprintln(w, reportHeaderSummary)
	_, _ = fmt.Fprintf(w, "Files removed: %d (%s)\n", len(report.RemovedFiles), FormatFileSize(report.FreedBytes))
	_, _ = fmt.Fprintf(w, "Entries kept: %d\n", len(report.KeptFiles)+len(report.KeptDirs))
}

func printSection(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w, title)

	for _, item := range items {
		_, _ = fmt.Fprintf(w, listItemFormat, item)
	}

	_, _ = fmt.Fprintln(w)
}

func withSlash(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, dir+string(filepath.Separator))
	}

	return out
}
