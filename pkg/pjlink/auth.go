package pjlink

import (
	"crypto/md5"
	"encoding/hex"
)

// AuthToken computes the PJLink authentication token: the lowercase hex
// MD5 digest of the connection's random key concatenated with the
// password. The result is always 32 characters.
func AuthToken(challenge []byte, password string) string {
	sum := md5.Sum(append(append([]byte{}, challenge...), []byte(password)...))
	return hex.EncodeToString(sum[:])
}
