package tools

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomBase36 returns n characters drawn from crypto/rand.
func RandomBase36(n int) string {
	max := big.NewInt(int64(len(base36)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("tools: crypto/rand unavailable: " + err.Error())
		}
		b[i] = base36[v.Int64()]
	}
	return string(b)
}

// TimeToken is base36(unix millis) followed by two random base36 segments.
func TimeToken(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + RandomBase36(11) + RandomBase36(11)
}

// Truncate cuts s to max runes and appends "..." when something was removed.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
