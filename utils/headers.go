// utils/headers.go
package utils

import "strings"

// NormalizeHeader trims a spreadsheet column header and collapses inner
// whitespace, including the line breaks some sheets put in long headers.
// "Weekly\nRent " becomes "Weekly Rent".
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(h), " ")
}
