package netstring

import (
	"bufio"
	"bytes"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"PostSRSd", "8:PostSRSd,", "PostSRSd", false},
		{"ItBarelyFits", "12:ItBarelyFits,", "ItBarelyFits", false},
		{"missing colon", "1a,", "", true},
		{"missing comma", "1:a*", "", true},
		{"bad length char", "0x1:a,", "", true},
		{"leading zeros", "000001:a,", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("Decode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "PostSRSd", string(bytes.Repeat([]byte("x"), 512))} {
		encoded := Encode([]byte(s))
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)) error = %v", s, err)
		}
		if string(got) != s {
			t.Errorf("round trip %q got %q", s, got)
		}
	}
}

func TestReadMultipleFromStream(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []byte("forward foo test@example.com")); err != nil {
		t.Fatal(err)
	}
	if err := Write(&buf, []byte("reverse foo SRS0=x=2W=d=u@h")); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	first, err := Read(r)
	if err != nil || string(first) != "forward foo test@example.com" {
		t.Fatalf("first = %q, err = %v", first, err)
	}
	second, err := Read(r)
	if err != nil || string(second) != "reverse foo SRS0=x=2W=d=u@h" {
		t.Fatalf("second = %q, err = %v", second, err)
	}
}

func TestReadTooLong(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("99999:x,")))
	if _, err := Read(r); err == nil {
		t.Errorf("expected truncated-body error for oversized declared length")
	}
}
