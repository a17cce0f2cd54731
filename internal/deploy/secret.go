package deploy

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const secretBytes = 32

// Secret is the single random credential generated once per run. String
// redacts so the value cannot leak through logging or error wrapping; the
// raw token is reachable only through Value.
type Secret struct {
	value string
}

// GenerateSecret returns a fresh 256-bit credential encoded with the
// URL-safe base64 alphabet. The resulting token needs no quoting inside
// redis.conf, a systemd Environment= line or a redis:// URL.
func GenerateSecret() (Secret, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("read entropy: %w", err)
	}
	return Secret{value: base64.RawURLEncoding.EncodeToString(buf)}, nil
}

func (s Secret) Value() string { return s.value }

func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) String() string { return "[redacted]" }
