package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// HashURL returns the hex SHA-256 digest of a URL or request identity, used
// as a stable page-cache key.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves a possibly relative href against the page URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}
