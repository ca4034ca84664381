// Package iohelper reads HTTP response bodies with a hard size ceiling.
package iohelper

import (
	"io"
)

// drainLimit bounds how much of an unread body is discarded to let the
// connection return to the pool.
const drainLimit = 64 * 1024

// ReadBody reads at most maxSize bytes from r. truncated reports whether r
// had more data than that. A nil reader yields an empty body.
//
// Usage:
//
//	body, truncated, err := iohelper.ReadBody(resp.Body, defaults.MaxBodySize)
//	defer iohelper.DrainAndClose(resp.Body)
func ReadBody(r io.Reader, maxSize int64) (body []byte, truncated bool, err error) {
	if r == nil {
		return []byte{}, false, nil
	}
	if maxSize <= 0 {
		return []byte{}, false, nil
	}
	body, err = io.ReadAll(io.LimitReader(r, maxSize+1))
	if int64(len(body)) > maxSize {
		return body[:maxSize], true, err
	}
	return body, false, err
}

// DrainAndClose discards a bounded amount of unread data and closes r when
// it is a ReadCloser. It always returns nil so it can be deferred directly.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
