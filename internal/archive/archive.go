// Package archive builds the zip bundle returned for each request.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Writer accumulates entries in insertion order in memory. A Writer is used
// by a single request and is not safe for concurrent use.
type Writer struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	names   map[string]int
	entries []string
	closed  bool
	modTime time.Time
}

// NewWriter returns an empty archive.
func NewWriter() *Writer {
	w := &Writer{names: make(map[string]int), modTime: time.Now()}
	w.zw = zip.NewWriter(&w.buf)
	return w
}

// Add stores data under name, or under name with a _2, _3, ... suffix when
// the name was already used. The stored name is returned.
func (w *Writer) Add(name string, data []byte) (string, error) {
	if w.closed {
		return "", fmt.Errorf("archive already finalized")
	}
	stored := w.uniqueName(name)

	fh := &zip.FileHeader{Name: stored, Method: zip.Deflate, Modified: w.modTime}
	f, err := w.zw.CreateHeader(fh)
	if err != nil {
		return "", multierr.Append(fmt.Errorf("failed at create zip entry %s", stored), err)
	}
	if _, err := f.Write(data); err != nil {
		return "", multierr.Append(fmt.Errorf("failed at write zip entry %s", stored), err)
	}
	w.entries = append(w.entries, stored)
	return stored, nil
}

func (w *Writer) uniqueName(name string) string {
	key := strings.ToLower(name)
	n := w.names[key]
	w.names[key] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := n + 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		ck := strings.ToLower(candidate)
		if _, taken := w.names[ck]; !taken {
			w.names[ck] = 1
			return candidate
		}
	}
}

// Entries lists the stored names in insertion order.
func (w *Writer) Entries() []string {
	out := make([]string, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of stored entries.
func (w *Writer) Len() int { return len(w.entries) }

// Bytes finalizes the archive and returns its content. Further Adds fail.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.closed {
		w.closed = true
		if err := w.zw.Close(); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at close zip"), err)
		}
	}
	return w.buf.Bytes(), nil
}
