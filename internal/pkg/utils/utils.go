package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID generates a UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

// NewReference generates a payment reference: a millisecond timestamp for
// sortability plus a random suffix for uniqueness. References correlate a
// payment across initiation, polling and webhook delivery, so they must
// never repeat; the creating caller still checks for collisions and
// regenerates rather than overwrite.
func NewReference(prefix string) string {
	if prefix == "" {
		prefix = "PAY"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), strings.ToUpper(RandomHex(4)))
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
