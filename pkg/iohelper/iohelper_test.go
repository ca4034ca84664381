package iohelper

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadBody_NilReader(t *testing.T) {
	body, truncated, err := ReadBody(nil, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != 0 || truncated {
		t.Errorf("got %d bytes truncated=%v, want empty", len(body), truncated)
	}
}

func TestReadBody_Truncates(t *testing.T) {
	body, truncated, err := ReadBody(strings.NewReader(strings.Repeat("x", 1000)), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("got %d bytes, want 100", len(body))
	}
	if !truncated {
		t.Error("expected truncated")
	}
}

func TestReadBody_ExactLimitIsNotTruncated(t *testing.T) {
	body, truncated, err := ReadBody(strings.NewReader("0123456789"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "0123456789" || truncated {
		t.Errorf("got %q truncated=%v", body, truncated)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &closeTracker{Reader: bytes.NewReader(make([]byte, 2*drainLimit))}
	if err := DrainAndClose(rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rc.closed {
		t.Error("reader not closed")
	}
	if err := DrainAndClose(nil); err != nil {
		t.Errorf("nil reader: %v", err)
	}
}
