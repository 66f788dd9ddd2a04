package service

import (
	"regexp"
	"strings"
)

// cfiPartPattern matches one path of an EPUB CFI body: slash-separated
// numeric steps with optional [assertion] qualifiers, optional '!'
// indirections, and an optional character offset or temporal terminal.
var cfiPartPattern = regexp.MustCompile(`^(/\d+(\[[^\[\]]*\])?|!)+(:\d+)?(~\d+(\.\d+)?)?$`)

// ValidateLocator reports whether locator is a well-formed renderer position
// string. It is the first line of defense: a malformed locator handed to the
// rendering engine makes it throw, so nothing may reach the engine without
// passing here first. Any malformed input yields false, never a panic.
func ValidateLocator(locator string) bool {
	const prefix = "epubcfi("
	const suffix = ")"

	if locator == "" {
		return false
	}
	if !strings.HasPrefix(locator, prefix) || !strings.HasSuffix(locator, suffix) {
		return false
	}

	body := locator[len(prefix) : len(locator)-len(suffix)]
	if body == "" {
		return false
	}

	// Range CFIs carry a parent path plus two relative sub-paths.
	parts := strings.Split(body, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" || !cfiPartPattern.MatchString(part) {
			return false
		}
	}
	return true
}
