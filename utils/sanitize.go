package utils

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var filenamePolicy = bluemonday.StrictPolicy()

const maxFilenameLen = 255

// SanitizeFilename strips markup and directory components from a client supplied name.
// The result is only recorded for display, never used to build a path.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = filenamePolicy.Sanitize(name)
	for len(name) > maxFilenameLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
