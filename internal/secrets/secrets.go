// Package secrets loads the HMAC secrets file: one secret per line,
// trailing CRLF stripped, blank lines skipped.
package secrets

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads every non-blank line of path as a secret, in file order
// (the first line is the signing secret; later lines are accepted for
// verification only — see internal/srs.Codec).
func Load(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}
	defer f.Close()

	var out [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		out = append(out, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("secrets: %s contains no secrets", path)
	}
	return out, nil
}

// Zero overwrites every secret's backing array with zero bytes.
func Zero(secrets [][]byte) {
	for _, s := range secrets {
		for i := range s {
			s[i] = 0
		}
	}
}
