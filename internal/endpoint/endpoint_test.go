package endpoint

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestBind_UnixSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "postsrsd.sock")

	listeners, err := Bind("unix:" + path)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(listeners) != 1 {
		t.Fatalf("got %d listeners, want 1", len(listeners))
	}
	defer listeners[0].Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o666 {
		t.Errorf("got mode %v, want 0666", info.Mode().Perm())
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestBind_UnixSocket_ReplacesStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "postsrsd.sock")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	listeners, err := Bind("unix:" + path)
	if err != nil {
		t.Fatalf("bind over stale socket: %v", err)
	}
	defer listeners[0].Close()
}

// TestBind_UnixSocket_SecondBindFails covers P10: a second bind of the
// same unix endpoint, while the first listener is still live, must
// fail to acquire the advisory lock rather than silently stealing the
// socket.
func TestBind_UnixSocket_SecondBindFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "postsrsd.sock")

	first, err := Bind("unix:" + path)
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	defer first[0].Close()

	if _, err := Bind("unix:" + path); err == nil {
		t.Error("expected second bind of the same unix endpoint to fail")
	}
}

func TestBind_InetLoopback(t *testing.T) {
	listeners, err := Bind("inet:localhost:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(listeners) == 0 {
		t.Fatal("got 0 listeners")
	}
	for _, l := range listeners {
		l.Close()
	}
}

func TestBind_UnrecognizedScheme(t *testing.T) {
	if _, err := Bind("bogus:whatever"); err == nil {
		t.Error("expected error for unrecognized endpoint")
	}
}
