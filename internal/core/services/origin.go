package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// OriginHasher turns a request origin into a keyed hash so raw addresses
// are never stored.
type OriginHasher struct {
	salt []byte
}

func NewOriginHasher(salt []byte) OriginHasher {
	return OriginHasher{salt: salt}
}

func (h OriginHasher) Hash(origin string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(origin))
	return hex.EncodeToString(mac.Sum(nil))
}
