package constants

import "strings"

// ExtPDF and ExtZip are the only extensions accepted at submission time.
// Zip archives are expanded into their PDF members; everything else inside
// an archive is skipped.
const (
	ExtPDF = "pdf"
	ExtZip = "zip"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFName reports whether the file name carries a .pdf extension.
func IsPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), "."+ExtPDF)
}

// IsZipName reports whether the file name carries a .zip extension.
func IsZipName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), "."+ExtZip)
}
