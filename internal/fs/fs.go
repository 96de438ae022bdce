// Package fs abstracts the filesystem operations the journal engine needs,
// so the indexer, writer, and sync service can be tested against a real
// directory tree (t.TempDir) or any other implementation of [FS].
//
// The interface is deliberately small: the engine only lists directories,
// stats files, reads and writes whole files, renames, and deletes. Writes of
// descriptor and item files go through [FS.WriteFileAtomic] so a crash never
// leaves a half-written markdown file behind.
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
// Satisfied by [os.File]; usable with bufio, io, and encoding packages.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations used by the journal engine.
//
// All methods mirror their [os] package equivalents. [Real] is the
// production implementation; tests may substitute their own.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to a file atomically.
	// Uses a temp file + rename so a crash never leaves a partial file.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries sorted by name.
	// See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and any missing parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file metadata. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists.
	// Returns (false, err) only for errors other than non-existence.
	Exists(path string) (bool, error)

	// Rename renames (moves) a file or directory. See [os.Rename].
	Rename(oldPath, newPath string) error

	// Remove deletes a single file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	RemoveAll(path string) error
}
