package sshui

import (
	"strings"
	"testing"
)

func ptyPayload(term string, w, h int) []byte {
	b := make([]byte, 0, 4+len(term)+16)
	b = append(b, byte(len(term)>>24), byte(len(term)>>16), byte(len(term)>>8), byte(len(term)))
	b = append(b, term...)
	for _, v := range []int{w, h, 0, 0} {
		b = append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return b
}

func TestParsePtyRequestExtractsDimensions(t *testing.T) {
	payload := ptyPayload("xterm-256color", 120, 40)
	w, h, ok := parsePtyRequest(payload)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if w != 120 || h != 40 {
		t.Fatalf("got (%d,%d), want (120,40)", w, h)
	}
}

func TestParsePtyRequestFallsBackOnZeroDimensions(t *testing.T) {
	payload := ptyPayload("xterm", 0, 0)
	w, h, ok := parsePtyRequest(payload)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if w != defaultTermWidth || h != defaultTermHeight {
		t.Fatalf("got (%d,%d), want defaults (%d,%d)", w, h, defaultTermWidth, defaultTermHeight)
	}
}

func TestParsePtyRequestRejectsTruncatedPayload(t *testing.T) {
	if _, _, ok := parsePtyRequest([]byte{0, 0, 0, 5}); ok {
		t.Fatalf("expected ok=false for a payload missing its declared term string")
	}
}

func TestReadInputLinesSplitsOnEnterAndHandlesBackspace(t *testing.T) {
	r := strings.NewReader("hi\x7f\x7fhello\r\nworld\n")
	var lines []string
	var echoes []string
	readInputLines(r, func(l string) { lines = append(lines, l) }, func(e string) { echoes = append(echoes, e) })

	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("lines = %v, want [hello world]", lines)
	}
	if len(echoes) == 0 {
		t.Fatalf("expected echo callbacks for in-progress input")
	}
}

func TestReadInputLinesCtrlUClearsBuffer(t *testing.T) {
	r := strings.NewReader("abc\x15def\r")
	var lines []string
	readInputLines(r, func(l string) { lines = append(lines, l) }, func(string) {})
	if len(lines) != 1 || lines[0] != "def" {
		t.Fatalf("lines = %v, want [def] (Ctrl-U should clear 'abc')", lines)
	}
}
