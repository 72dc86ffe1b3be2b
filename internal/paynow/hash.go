package paynow

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"sort"
	"strings"
)

// The gateway authenticates every message with one signature scheme:
// field values concatenated in lexicographic key order (values only, no
// separators), the integration key appended, HMAC-SHA512 over the result
// keyed with the same integration key, rendered as uppercase hex. The
// "hash" field itself never participates. This is a wire-compatibility
// contract; any deviation breaks interoperability with the gateway.

const hashField = "hash"

// Sign computes the canonical signature for fields under the given
// integration key. Deterministic for a given input.
func Sign(fields map[string]string, integrationKey string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.EqualFold(k, hashField) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fields[k])
	}
	b.WriteString(integrationKey)

	mac := hmac.New(sha512.New, []byte(integrationKey))
	mac.Write([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// VerifyHash recomputes the signature over fields and compares it to the
// received hash, case-insensitively and in constant time. A false return
// means the message must be discarded before any state is touched.
func VerifyHash(fields map[string]string, integrationKey, received string) bool {
	if received == "" {
		return false
	}
	want := Sign(fields, integrationKey)
	return hmac.Equal([]byte(want), []byte(strings.ToUpper(received)))
}
