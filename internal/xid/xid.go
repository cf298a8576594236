// Package xid generates prefixed, sortable-enough unique identifiers.
// Sale numbers and shift ids use these; row-level entity ids use UUIDs.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// SaleNumber returns a globally unique, human-readable sale number.
func SaleNumber() string {
	return New("SALE")
}
