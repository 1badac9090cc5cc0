package content

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFSStore_WriteOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	name := "videos/abc_clip.mp4"
	if err := store.Write(ctx, name, strings.NewReader("frames"), 6); err != nil {
		t.Fatalf("Write: %v", err)
	}

	obj, err := store.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(obj.Body)
	obj.Body.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "frames" || obj.Size != 6 {
		t.Fatalf("unexpected object: %q size=%d", data, obj.Size)
	}
	if _, ok := obj.Body.(io.Seeker); !ok {
		t.Fatal("fs objects should be seekable")
	}

	if err := store.Delete(ctx, name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, name); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := store.Delete(ctx, name); err != nil {
		t.Fatalf("deleting a missing object should succeed, got %v", err)
	}
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFSStore(t.TempDir())
	for _, name := range []string{"../escape.mp4", "/abs.mp4", "videos/../../x", "", "a//b"} {
		if err := store.Write(ctx, name, strings.NewReader("x"), 1); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestObjectName(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":            "videos/u1_clip.mp4",
		"../../etc/passwd":    "videos/u1_passwd",
		`C:\Users\me\a b.mp4`: "videos/u1_a_b.mp4",
		"":                    "videos/u1_video.mp4",
	}
	for in, want := range cases {
		if got := ObjectName("u1", in); got != want {
			t.Fatalf("ObjectName(%q) = %q, want %q", in, got, want)
		}
	}
}
