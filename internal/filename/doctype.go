package filename

import (
	"path/filepath"
	"strings"
)

// Document types inferred from file extensions.
const (
	DocTypePDF        = "PDF"
	DocTypeWord       = "WORD"
	DocTypeExcel      = "EXCEL"
	DocTypePowerPoint = "POWERPOINT"
	DocTypeText       = "TEXT"
	DocTypeImage      = "IMAGE"
	DocTypeUnknown    = "UNKNOWN"
)

var docTypes = map[string]string{
	"PDF":  DocTypePDF,
	"DOC":  DocTypeWord,
	"DOCX": DocTypeWord,
	"XLS":  DocTypeExcel,
	"XLSX": DocTypeExcel,
	"CSV":  DocTypeExcel,
	"PPT":  DocTypePowerPoint,
	"PPTX": DocTypePowerPoint,
	"TXT":  DocTypeText,
	"MD":   DocTypeText,
	"PNG":  DocTypeImage,
	"JPG":  DocTypeImage,
	"JPEG": DocTypeImage,
	"GIF":  DocTypeImage,
}

// DocTypeFor maps an extension (".docx", "DOCX" or "docx") to a document
// type. Unknown extensions map to the bare upper-cased extension.
func DocTypeFor(ext string) string {
	e := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if e == "" {
		return DocTypeUnknown
	}
	if t, ok := docTypes[e]; ok {
		return t
	}
	return e
}

// DocTypeForPath infers the document type from a path or filename.
func DocTypeForPath(path string) string {
	return DocTypeFor(filepath.Ext(path))
}
