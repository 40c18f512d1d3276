package cymo

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// Enumerator lists the files to upload under a root.
type Enumerator interface {
	// Enumerate returns the files under root. An unusable root is reported
	// as an error before any task is produced.
	Enumerate(root string) (iter.Seq[UploadTask], error)
}

// TreeEnumerator walks a billy.Filesystem depth first.
//
// Entries of a directory are taken in name order: its files first, then
// each subdirectory in turn. Names starting with a dot are skipped, as are
// symlinks and other non-regular files. A directory that cannot be read is
// logged and skipped.
type TreeEnumerator struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// NewTreeEnumerator returns an enumerator over fs. A nil logger discards.
func NewTreeEnumerator(fs billy.Filesystem, logger *slog.Logger) *TreeEnumerator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TreeEnumerator{fs: fs, logger: logger}
}

// Enumerate implements Enumerator. A root that is a regular file yields a
// single task named after it.
func (e *TreeEnumerator) Enumerate(root string) (iter.Seq[UploadTask], error) {
	info, err := e.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local root %q: %w", root, err)
	}

	if info.Mode().IsRegular() {
		task := UploadTask{Path: root, RelPath: path.Base(filepath.ToSlash(root))}
		return func(yield func(UploadTask) bool) {
			yield(task)
		}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %q is neither a directory nor a regular file", root)
	}

	entries, err := e.fs.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("local root %q: %w", root, err)
	}

	return func(yield func(UploadTask) bool) {
		e.walk(root, entries, yield)
	}, nil
}

type pendingDir struct {
	path string
	rel  string
}

func (e *TreeEnumerator) walk(root string, rootEntries []os.FileInfo, yield func(UploadTask) bool) {
	stack := []pendingDir{{path: root}}
	first := true

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var entries []os.FileInfo
		if first {
			entries, first = rootEntries, false
		} else {
			var err error
			entries, err = e.fs.ReadDir(dir.path)
			if err != nil {
				e.logger.Warn("skipping unreadable directory", "path", dir.path, "error", err)
				continue
			}
		}

		slices.SortFunc(entries, func(a, b os.FileInfo) int {
			return strings.Compare(a.Name(), b.Name())
		})

		var subdirs []pendingDir
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			child := pendingDir{path: e.fs.Join(dir.path, name), rel: path.Join(dir.rel, name)}

			switch {
			case entry.IsDir():
				subdirs = append(subdirs, child)
			case entry.Mode().IsRegular():
				if !yield(UploadTask{Path: child.path, RelPath: child.rel}) {
					return
				}
			default:
				e.logger.Debug("skipping non-regular file", "path", child.path, "mode", entry.Mode().String())
			}
		}

		// Pushed in reverse so the first subdirectory is popped first.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
}
