// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingdir manages a temporary directory that can later be
// published atomically to a destination path, so a dataset directory never
// appears at its final path half-written.
package stagingdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// D is a directory that is built up at a temporary location and later
// either committed (atomically moved into its destination) or destroyed
// (deleted along with all of its contents).
type D struct {
	// tempDir is the directory under which the staging directory itself was
	// created, and under which any overwrite-kill directories are created.
	tempDir string

	// path is the current path of the staging directory. It is cleared once
	// D has been committed or destroyed.
	path string
}

// New creates a new staging directory underneath tempDir, named with the
// given prefix.
func New(tempDir, prefix string) (*D, error) {
	stagingPath, err := os.MkdirTemp(tempDir, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}

	return &D{
		tempDir: tempDir,
		path:    stagingPath,
	}, nil
}

// Root returns the staging directory's current absolute path. It panics if
// D has already been committed or destroyed.
func (sd *D) Root() string {
	if sd.path == "" {
		panic("stagingdir: Root called on a committed or destroyed directory")
	}
	return sd.path
}

// Path builds a path relative to the staging directory from the given
// components.
func (sd *D) Path(first string, components ...string) string {
	if sd.path == "" {
		panic("stagingdir: Path called on a committed or destroyed directory")
	}
	if len(components) == 0 {
		return filepath.Join(sd.path, first)
	}

	comps := make([]string, 0, 2+len(components))
	comps = append(comps, sd.path, first)
	return filepath.Join(append(comps, components...)...)
}

// Destroy purges the staging directory and everything in it. Destroy on an
// already-committed or already-destroyed D is a no-op.
func (sd *D) Destroy() error {
	if sd.path == "" {
		return nil
	}
	if err := os.RemoveAll(sd.path); err != nil {
		return errors.Wrap(err, "destroying staging directory")
	}
	sd.path = ""
	return nil
}

// Commit atomically moves the staging directory into place at dest. If
// something already exists at dest, it is first moved aside into a
// best-effort-cleaned-up directory under tempDir, so the rename to dest
// never has to contend with an existing entry.
func (sd *D) Commit(dest string) error {
	if sd.path == "" {
		return errors.New("stagingdir: Commit called on a committed or destroyed directory")
	}

	if _, err := os.Stat(dest); err == nil {
		killDir, err := os.MkdirTemp(sd.tempDir, "overwrite-")
		if err != nil {
			return errors.Wrap(err, "creating overwrite directory")
		}
		defer func() {
			go func() { _ = os.RemoveAll(killDir) }()
		}()

		killDest := filepath.Join(killDir, filepath.Base(dest))
		_ = os.Rename(dest, killDest)
	}

	if err := os.Rename(sd.path, dest); err != nil {
		return errors.Wrapf(err, "moving staging directory into place (%q => %q)", sd.path, dest)
	}
	sd.path = ""
	return nil
}
