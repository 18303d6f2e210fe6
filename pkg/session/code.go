package session

import (
	"crypto/rand"
	"errors"
	"strings"
)

// CodeAlphabet has no 0/O and 1/I so codes can be read aloud.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

var ErrInvalidCode = errors.New("invalid room code")

// NewRoomCode makes a random room code.
func NewRoomCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		// 256 is a multiple of the alphabet size, no bias
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b), nil
}

// NormalizeCode uppercases a typed code and drops spaces and dashes.
func NormalizeCode(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

func ValidateCode(s string) error {
	if len(s) != CodeLength {
		return ErrInvalidCode
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CodeAlphabet, s[i]) < 0 {
			return ErrInvalidCode
		}
	}
	return nil
}

// Topic is the relay topic of a room.
func Topic(code string) string { return "room:" + code }
