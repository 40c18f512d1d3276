package ftp

import "io"

// ProgressReader wraps an io.Reader and counts the bytes read through it.
//
//	pr := &ftp.ProgressReader{Reader: file}
//	err := client.Store("remote.bin", pr)
//	sent := pr.Total()
type ProgressReader struct {
	// Reader is the underlying reader
	Reader io.Reader

	total int64
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.total += int64(n)
	return n, err
}

// Total returns the number of bytes read so far.
func (pr *ProgressReader) Total() int64 {
	return pr.total
}
