package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewGrantID builds a grant identifier in the CODE-YEAR-Codename format,
// e.g. "PYPI-2026-Packaging". The codename keeps its original casing; the
// org code is uppercased.
func NewGrantID(code string, year int, codename string) string {
	return fmt.Sprintf("%s-%d-%s", strings.ToUpper(strings.TrimSpace(code)), year, strings.TrimSpace(codename))
}
