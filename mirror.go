package cymo

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
)

// DirectoryMirror makes the remote directory for a file's parent exist and
// be the session's working directory. It belongs to one session.
//
// Every directory the mirror entered or created is remembered, so a later
// file in a known directory costs at most one CWD and a file in the current
// directory costs nothing.
type DirectoryMirror struct {
	root  string
	cwd   string // "" when unknown
	known map[string]struct{}

	// created counts MKD calls that succeeded.
	created int
}

// NewDirectoryMirror returns a mirror for a session whose working directory
// is the absolute remote root.
func NewDirectoryMirror(root string) *DirectoryMirror {
	root = path.Clean("/" + root)
	return &DirectoryMirror{
		root:  root,
		cwd:   root,
		known: map[string]struct{}{root: {}},
	}
}

// Root returns the absolute remote root.
func (m *DirectoryMirror) Root() string {
	return m.root
}

// Created returns how many directories this mirror created.
func (m *DirectoryMirror) Created() int {
	return m.created
}

// Target returns the absolute remote directory for a slash-separated
// directory relative to the root.
func (m *DirectoryMirror) Target(relDir string) string {
	return path.Join(m.root, relDir)
}

// Ensure changes conn into the remote counterpart of relDir, creating the
// missing levels. On error the working directory is treated as unknown so
// the next call enters the target explicitly.
func (m *DirectoryMirror) Ensure(conn Conn, relDir string) error {
	target := m.Target(relDir)
	if target == m.cwd {
		return nil
	}

	if _, ok := m.known[target]; ok {
		if err := conn.ChangeDir(target); err != nil {
			m.cwd = ""
			return fmt.Errorf("change to %s: %w", target, err)
		}
		m.cwd = target
		return nil
	}

	// Levels below the deepest known ancestor, outermost first.
	var levels []string
	for dir := target; ; dir = path.Dir(dir) {
		if _, ok := m.known[dir]; ok || dir == "/" {
			break
		}
		levels = append(levels, dir)
	}

	for i := len(levels) - 1; i >= 0; i-- {
		if err := m.enter(conn, levels[i]); err != nil {
			m.cwd = ""
			return err
		}
	}
	return nil
}

func (m *DirectoryMirror) enter(conn Conn, dir string) error {
	err := conn.ChangeDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("change to %s: %w", dir, err)
		}

		// Another session may create dir between our CWD and MKD, so an
		// MKD failure only counts if the directory is still not enterable.
		mkErr := conn.MakeDir(dir)
		if mkErr == nil {
			m.created++
		}
		if err := conn.ChangeDir(dir); err != nil {
			if mkErr != nil {
				return fmt.Errorf("create %s: %w", dir, mkErr)
			}
			return fmt.Errorf("change to %s: %w", dir, err)
		}
	}

	m.known[dir] = struct{}{}
	m.cwd = dir
	return nil
}
