// Package atomicfile reads and replaces small private files so that a crash
// mid-write leaves either the old or the new content, never a mix.
package atomicfile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

const (
	FileMode os.FileMode = 0600
	DirMode  os.FileMode = 0700
)

// Read returns the content of path, or nil with no error if the file does not
// exist.
func Read(path string) (b []byte, err error) {
	if b, err = os.ReadFile(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return
}

// Write replaces path with b through a temporary file in the same
// directory, creating the directory with DirMode if needed.
func Write(path string, b []byte, mode os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, DirMode); chk.E(err) {
		return
	}
	var f *os.File
	if f, err = os.CreateTemp(dir, filepath.Base(path)+".tmp-*"); chk.E(err) {
		return
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(b); err != nil {
		_ = f.Close()
		return
	}
	if err = f.Chmod(mode); err != nil {
		_ = f.Close()
		return
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return
	}
	if err = f.Close(); err != nil {
		return
	}
	if err = os.Rename(tmp, path); chk.E(err) {
		return
	}
	log.T.F("wrote %d bytes to %s", len(b), path)
	return
}
