package storage

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestFSStorePutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key, err := s.Put("sessions/s1/q1.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "sessions/s1/q1.png" {
		t.Errorf("unexpected key %q", key)
	}

	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, key := range []string{"", ".", "../outside", "/abs/path"} {
		if _, err := s.Put(key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestFSStoreDelete(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	key, err := s.Put("sessions/s1/q1.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(key); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Get after Delete: %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Errorf("Delete of a missing key: %v", err)
	}
	if err := s.Delete("../outside"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Delete(../outside): %v", err)
	}
}
