// Package scratch manages the temporary directory a conversion writes its
// audio segments and final artifact into.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

const (
	envScratchDir         = "NARRATOR_SCRATCH_DIR"
	appName               = "narrator"
	dotCache              = ".cache"
	scratchDirName        = "scratch"
	segmentPrefix         = "segment_"
	segmentFormat         = segmentPrefix + "%04d%s"
	finalName             = "final_audio"
	concatListName        = "concat_list.txt"
	defaultDirPermissions = 0o750
	filePermissions       = 0o600
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtWriteSegment      = "failed to write segment %d: %w"
	logFmtPurgeFailed       = "Could not remove stale scratch file %s: %v"
	logFmtPurged            = "Removed %d stale scratch files from %s"
	logFmtRecreated         = "Scratch directory %s was missing and has been recreated"
)

// ErrDirEmpty is returned when no scratch directory is configured.
var ErrDirEmpty = errors.New("scratch directory cannot be empty")

// Area is one scratch directory. Segment paths are derived from the job
// index so a later segment can never overwrite an earlier one.
type Area struct {
	dir string
	log *logger.Logger
}

// DefaultDir returns NARRATOR_SCRATCH_DIR when set, otherwise a directory
// under the user's cache, falling back to the system temp dir.
func DefaultDir() string {
	if dir := os.Getenv(envScratchDir); dir != "" {
		return dir
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return filepath.Join(os.TempDir(), appName, scratchDirName)
	}

	return filepath.Join(homeDir, dotCache, appName, scratchDirName)
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// New prepares the scratch area rooted at dir.
func New(dir string, log *logger.Logger) (*Area, error) {
	if dir == "" {
		return nil, ErrDirEmpty
	}

	dirErr := EnsureDir(dir)
	if dirErr != nil {
		return nil, dirErr
	}

	return &Area{dir: dir, log: log}, nil
}

// Dir returns the root directory.
func (a *Area) Dir() string {
	return a.dir
}

// SegmentPath returns the path of the segment for job index.
func (a *Area) SegmentPath(index int, encoding core.Encoding) string {
	return filepath.Join(a.dir, fmt.Sprintf(segmentFormat, index, encoding.Extension()))
}

// FinalPath returns the well-known path of the concatenated artifact.
func (a *Area) FinalPath(encoding core.Encoding) string {
	return filepath.Join(a.dir, finalName+encoding.Extension())
}

// ListPath returns the path of the ffmpeg concat list.
func (a *Area) ListPath() string {
	return filepath.Join(a.dir, concatListName)
}

// WriteSegment stores the audio of job index and returns its path.
func (a *Area) WriteSegment(index int, encoding core.Encoding, audio []byte) (string, error) {
	path := a.SegmentPath(index, encoding)

	writeErr := os.WriteFile(path, audio, filePermissions)
	if errors.Is(writeErr, fs.ErrNotExist) {
		dirErr := EnsureDir(a.dir)
		if dirErr != nil {
			return "", fmt.Errorf(errFmtWriteSegment, index, dirErr)
		}

		writeErr = os.WriteFile(path, audio, filePermissions)
	}

	if writeErr != nil {
		return "", fmt.Errorf(errFmtWriteSegment, index, writeErr)
	}

	return path, nil
}

// Segments lists the segment files currently on disk, in index order.
func (a *Area) Segments() ([]string, error) {
	matches, globErr := filepath.Glob(filepath.Join(a.dir, segmentPrefix+"*"))
	if globErr != nil {
		return nil, fmt.Errorf("failed to list segments: %w", globErr)
	}

	sort.Strings(matches)

	return matches, nil
}

// Purge removes segments, the concat list and any previous final artifact.
// A directory removed since New is created again. Failures are logged and
// never returned. It reports how many files were removed.
func (a *Area) Purge() int {
	entries, readErr := os.ReadDir(a.dir)
	if errors.Is(readErr, fs.ErrNotExist) {
		dirErr := EnsureDir(a.dir)
		if dirErr != nil {
			a.log.Warn(logFmtPurgeFailed, a.dir, dirErr)
		} else {
			a.log.Info(logFmtRecreated, a.dir)
		}

		return 0
	}

	if readErr != nil {
		a.log.Warn(logFmtPurgeFailed, a.dir, readErr)

		return 0
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !isScratchFile(entry.Name()) {
			continue
		}

		path := filepath.Join(a.dir, entry.Name())

		removeErr := os.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			a.log.Warn(logFmtPurgeFailed, path, removeErr)

			continue
		}

		removed++
	}

	if removed > 0 {
		a.log.Info(logFmtPurged, removed, a.dir)
	}

	return removed
}

// CopyFile streams source into destination, creating the parent directory
// of destination when needed.
func CopyFile(source, destination string) error {
	in, openErr := os.Open(source)
	if openErr != nil {
		return fmt.Errorf("open %s: %w", source, openErr)
	}
	defer in.Close()

	dirErr := EnsureDir(filepath.Dir(destination))
	if dirErr != nil {
		return dirErr
	}

	out, createErr := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if createErr != nil {
		return fmt.Errorf("create %s: %w", destination, createErr)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("copy to %s: %w", destination, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", destination, closeErr)
	}

	return nil
}

func isScratchFile(name string) bool {
	return strings.HasPrefix(name, segmentPrefix) ||
		strings.HasPrefix(name, finalName+".") ||
		name == concatListName
}
