package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTempFile(t, "postsrsd.toml", `
srs-domain = "example.com"
secrets-file = "/etc/postsrsd.secret"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Separator != "=" {
		t.Errorf("got separator %q, want '='", c.Separator)
	}
	if c.HashLength != 4 || c.HashMinimum != 4 {
		t.Errorf("got hash-length=%d hash-minimum=%d, want 4,4", c.HashLength, c.HashMinimum)
	}
	if c.Socketmap != DefaultSocketmap {
		t.Errorf("got socketmap %q, want %q", c.Socketmap, DefaultSocketmap)
	}
	if c.KeepAlive != 30 {
		t.Errorf("got keep-alive %d, want 30", c.KeepAlive)
	}
}

func TestLoad_MissingDomain(t *testing.T) {
	path := writeTempFile(t, "postsrsd.toml", `secrets-file = "/etc/postsrsd.secret"`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for missing srs-domain/domains")
	}
}

func TestLoad_DatabaseEnvelopeRequiresURI(t *testing.T) {
	path := writeTempFile(t, "postsrsd.toml", `
srs-domain = "example.com"
original-envelope = "database"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for missing envelope-database")
	}
}

func TestLoad_InvalidSeparator(t *testing.T) {
	path := writeTempFile(t, "postsrsd.toml", `
srs-domain = "example.com"
separator = "*"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for invalid separator")
	}
}

func TestLoad_DomainsFile(t *testing.T) {
	domainsPath := writeTempFile(t, "domains.txt", "# comment\nexample.com\n  other.example.com  \n\n")
	path := writeTempFile(t, "postsrsd.toml", `
srs-domain = "example.com"
domains-file = "`+domainsPath+`"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Domains) != 2 {
		t.Fatalf("got %d domains, want 2: %v", len(c.Domains), c.Domains)
	}
	if c.Domains[0] != "example.com" || c.Domains[1] != "other.example.com" {
		t.Errorf("got domains %v", c.Domains)
	}
}

func TestLoad_DomainsFile_InvalidNameRejectsWholeFile(t *testing.T) {
	domainsPath := writeTempFile(t, "domains.txt", "example.com\nbad_domain!.com\nother.example.com\n")
	path := writeTempFile(t, "postsrsd.toml", `
srs-domain = "example.com"
domains-file = "`+domainsPath+`"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for a domains file containing an invalid name")
	}
}
