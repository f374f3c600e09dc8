package internal

import (
	"os"
	"path/filepath"
)

// Directory lists the base names of file's directory entries, or, if
// file is itself a plain file, returns its own base name as a
// single-element slice.
func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	return f.Readdirnames(0)
}

// FullPathname resolves filename to an absolute path, joining it
// against the process's current working directory if it is not
// already absolute.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}
