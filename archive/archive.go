package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FilePermission is the mode recorded for every packed entry
const FilePermission = 0644

// ErrNotFound is returned when a stream holds no file entry or cannot be parsed
var ErrNotFound = errors.New("archive: no file entry found")

var gzipMagic = []byte{0x1f, 0x8b}

// Entry is a single file inside an archive
type Entry struct {
	Path string
	Data []byte
}

// Pack writes the entries into a tar stream and compresses it with gzip
func Pack(entries ...Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("archive: nothing to pack")
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	modTime := time.Now()
	for _, entry := range entries {
		if entry.Path == "" {
			return nil, fmt.Errorf("archive: entry with empty path")
		}

		header := &tar.Header{
			Name:     entry.Path,
			Mode:     FilePermission,
			Size:     int64(len(entry.Data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", entry.Path, err)
		}
		if _, err := tarWriter.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("failed to write tar content for %s: %w", entry.Path, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// UnpackSingle returns the content of the first regular file in the archive.
//
// The entry name is not checked: the daemon wraps a downloaded file in
// whatever directory headers it likes, so any leading directories are skipped.
func UnpackSingle(data []byte) ([]byte, error) {
	return UnpackSingleFrom(bytes.NewReader(data))
}

// UnpackSingleFrom is UnpackSingle over a stream
func UnpackSingleFrom(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		gzipReader, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		defer gzipReader.Close()
		src = gzipReader
	}

	tarReader := tar.NewReader(src)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}

		switch header.Typeflag {
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archivers still emit TypeRegA
			content, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
			}
			return content, nil
		default:
			continue
		}
	}
}
