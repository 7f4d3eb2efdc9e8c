package application

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// NormalizeHandle trims, NFC-normalizes and lowercases a receiver handle.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.TrimSpace(raw)
	if handle == "" {
		return "", fmt.Errorf("%w: handle is required", ErrInvalidInput)
	}
	if strings.ContainsAny(handle, " \t\r\n/?#&:") {
		return "", fmt.Errorf("%w: handle %q", ErrInvalidInput, raw)
	}
	// Lowercase, never fold: straße.eth and strasse.eth are distinct names.
	// Casers carry state, so each call builds its own.
	handle = cases.Lower(language.Und).String(norm.NFC.String(handle))
	if strings.HasPrefix(handle, ".") || strings.HasSuffix(handle, ".") || strings.Contains(handle, "..") {
		return "", fmt.Errorf("%w: handle %q", ErrInvalidInput, raw)
	}
	return handle, nil
}

// NormalizeTxHash checks that raw is a 32-byte 0x-prefixed hex string and
// returns it lowercased.
func NormalizeTxHash(raw string) (string, error) {
	if !txHashPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: tx hash %q", ErrInvalidInput, raw)
	}
	return strings.ToLower(raw), nil
}

// ParsePage parses a 1-based page number. An empty value means page 1.
func ParsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("%w: page %q", ErrInvalidInput, raw)
	}
	return page, nil
}
