// Package archive implements the file-transfer envelope used to move files
// in and out of sandbox containers.
//
// Uploads are packed as gzip-compressed POSIX tar streams. Downloads accept
// either a gzip-compressed or a plain tar stream, which is what the Docker
// daemon hands back from its archive endpoint, and yield the bytes of the
// first regular file in it.
//
// Usage:
//
//	data, err := archive.Pack(archive.Entry{Path: "main.py", Data: src})
//	if err != nil {
//	    return err
//	}
//	content, err := archive.UnpackSingle(data)
package archive
