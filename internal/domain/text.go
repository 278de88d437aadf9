package domain

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeText converts CRLF and bare CR line endings to LF. Free-text fields
// go through it before they are stored so CSV exports read back unchanged.
func NormalizeText(s string) string {
	return lineEndings.Replace(s)
}
