package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp secrets file: %v", err)
	}
	return path
}

func TestLoad_OrderAndBlankLines(t *testing.T) {
	path := writeTemp(t, "first-secret\r\n\nsecond-secret\n\n\nthird-secret\r\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"first-secret", "second-secret", "third-secret"}
	if len(got) != len(want) {
		t.Fatalf("got %d secrets, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("secret %d = %q, want %q", i, got[i], w)
		}
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeTemp(t, "\n\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for a secrets file with no secrets")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("expected error for a missing secrets file")
	}
}

func TestZero(t *testing.T) {
	secrets := [][]byte{[]byte("abc"), []byte("defgh")}
	Zero(secrets)
	for i, s := range secrets {
		for j, b := range s {
			if b != 0 {
				t.Errorf("secret %d byte %d not zeroed: %v", i, j, s)
			}
		}
	}
}
