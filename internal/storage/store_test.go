package storage

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), nil)

	rel, n, err := s.Save("nota fiscal.pdf", strings.NewReader("conteudo"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != int64(len("conteudo")) {
		t.Errorf("bytes written = %d", n)
	}

	now := time.Now().UTC()
	prefix := fmt.Sprintf("nfse/uploads/%04d/%02d/%02d/", now.Year(), now.Month(), now.Day())
	if !strings.HasPrefix(rel, prefix) {
		t.Errorf("stored path %q should start with %q", rel, prefix)
	}
	if !strings.HasSuffix(rel, "_nota fiscal.pdf") {
		t.Errorf("stored path %q should keep the original name", rel)
	}

	f, err := s.Open(rel)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if string(got) != "conteudo" {
		t.Errorf("read back %q", got)
	}
}

func TestSaveStripsDirectoryComponents(t *testing.T) {
	s := NewStore(t.TempDir(), nil)

	rel, _, err := s.Save("../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(rel, "..") {
		t.Errorf("stored path %q should not contain traversal", rel)
	}
}

func TestOpenRejectsEscapingPath(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	if _, err := s.Open("../outside"); err == nil {
		t.Error("escaping path should be rejected")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	rel, _, err := s.Save("a.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(rel); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(rel); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}
