package clowder

import (
	"crypto/rand"
	"regexp"
)

const (
	uidAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	uidLength   = 6
)

var uidPattern = regexp.MustCompile(`^[a-z0-9]{6}$`)

// NewUID returns a random job-name suffix matching [a-z0-9]{6}.
func NewUID() string {
	buf := make([]byte, uidLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = uidAlphabet[int(b)%len(uidAlphabet)]
	}
	return string(buf)
}

// ValidUID reports whether s is a well-formed job-name suffix.
func ValidUID(s string) bool {
	return uidPattern.MatchString(s)
}
