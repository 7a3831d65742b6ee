package model

import (
	"strconv"
	"strings"
)

const uriSafe = "-._~:/?#[]@!$&'()*+,;=%"

// FixURI normalizes an outline link target. A bare page number becomes an
// internal "#<n>" reference; bytes outside the URI character set are
// percent-encoded. Existing escapes are left alone, so FixURI is idempotent.
func FixURI(uri string) string {
	if uri != "" && isDigits(uri) {
		return "#" + uri
	}
	var sb strings.Builder
	for i := 0; i < len(uri); i++ {
		c := uri[i]
		if isAlnum(c) || strings.IndexByte(uriSafe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte("0123456789ABCDEF"[c>>4])
		sb.WriteByte("0123456789ABCDEF"[c&0xf])
	}
	return sb.String()
}

// PageURI returns the internal reference for 0-based page n.
func PageURI(n int) string {
	return "#" + strconv.Itoa(n+1)
}

// PageNumber resolves an internal "#<n>" reference to a 0-based page index.
func PageNumber(uri string) (int, bool) {
	s, ok := strings.CutPrefix(uri, "#")
	if !ok || s == "" || !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
