package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/zulandar/signoff/internal/jsonfile"
	"github.com/zulandar/signoff/internal/models"
)

// MigrationReport describes what Migrate did.
type MigrationReport struct {
	Migrated  bool   // the file was rewritten
	Documents int    // records in the rewritten file
	Backup    string // path of the pre-migration copy
	Skipped   string // reason the file was left alone, if any
}

// Migrate rewrites a legacy documents file into the current shape. Legacy
// files keep their records under "pending" instead of "documents", use
// snake_case field names, and may carry misspelled or absent states. The
// original bytes are copied to path+".bak" before the rewrite. Files already
// in the current shape are left untouched, as are missing and unparsable
// files; the regular read path treats those as empty.
func Migrate(path string) (MigrationReport, error) {
	var report MigrationReport

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			report.Skipped = "missing"
			return report, nil
		}
		return report, fmt.Errorf("docstore: migrate: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		report.Skipped = "empty"
		return report, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		report.Skipped = "unparsable"
		return report, nil
	}

	key := "documents"
	raw, ok := top[key]
	if !ok {
		key = "pending"
		if raw, ok = top[key]; !ok {
			report.Skipped = "no collection"
			return report, nil
		}
	}

	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		report.Skipped = "unparsable"
		return report, nil
	}

	changed := key != "documents"
	docs := make([]models.Document, 0, len(records))
	for _, rec := range records {
		doc, recChanged := normalizeRecord(rec)
		changed = changed || recChanged
		docs = append(docs, doc)
	}
	if !changed {
		report.Skipped = "current"
		return report, nil
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = nextID(docs)
		}
	}

	backup := path + ".bak"
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return report, fmt.Errorf("docstore: migrate: backup %s: %w", backup, err)
	}
	if err := jsonfile.Write(path, collection{Documents: docs}); err != nil {
		return report, fmt.Errorf("docstore: migrate: %w", err)
	}

	report.Migrated = true
	report.Documents = len(docs)
	report.Backup = backup
	return report, nil
}

// normalizeRecord converts one legacy record into a Document. changed
// reports whether anything differed from the current on-disk form.
func normalizeRecord(rec map[string]any) (models.Document, bool) {
	changed := false
	camel := make(map[string]any, len(rec))
	for k, v := range rec {
		ck := snakeToCamel(k)
		if ck != k {
			changed = true
			if _, exists := rec[ck]; exists {
				continue
			}
		}
		camel[ck] = v
	}

	doc, coerced := decodeRecord(camel)
	changed = changed || coerced

	if state := models.NormalizeState(doc.State); state != doc.State {
		doc.State = state
		changed = true
	}
	if doc.DocType == "" {
		doc.DocType = inferDocType(&doc)
		changed = true
	}
	return doc, changed
}

// legacyTimeLayouts are the timestamp spellings found in legacy files.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// decodeRecord decodes a record one field at a time. Numbers keep their
// literal digits, timestamps are tried against each legacy layout, and a
// field that cannot be interpreted is dropped on its own. coerced reports
// that some value was not already in its current on-disk form.
func decodeRecord(rec map[string]any) (doc models.Document, coerced bool) {
	str := func(key string) string {
		v, ok := rec[key]
		if !ok {
			return ""
		}
		s, exact := stringValue(v)
		if !exact {
			coerced = true
		}
		return s
	}
	ts := func(key string) time.Time {
		v, ok := rec[key]
		if !ok {
			return time.Time{}
		}
		t, exact := timeValue(v)
		if !exact {
			coerced = true
		}
		return t
	}

	doc = models.Document{
		ID:               str("id"),
		State:            str("state"),
		LocalPath:        str("localPath"),
		DocType:          str("docType"),
		Title:            str("title"),
		DocNumber:        str("docNumber"),
		DocClass:         str("docClass"),
		Revision:         str("revision"),
		Sheet:            str("sheet"),
		Responsible:      str("responsible"),
		Status:           str("status"),
		FileStatus:       str("fileStatus"),
		Language:         str("language"),
		DocumentType:     str("documentType"),
		CreatedAt:        ts("createdAt"),
		ModifiedAt:       ts("modifiedAt"),
		CreatedBy:        str("createdBy"),
		ModifiedBy:       str("modifiedBy"),
		OriginalFilename: str("originalFilename"),
	}
	return doc, coerced
}

// stringValue renders a decoded JSON value as text. exact is false when
// the value was not already a string.
func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case nil:
		return "", true
	case json.Number:
		return x.String(), false
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), false
	case bool:
		return strconv.FormatBool(x), false
	default:
		return "", false
	}
}

// timeValue parses a legacy timestamp: a string in one of
// legacyTimeLayouts, or a number of Unix seconds (milliseconds when it is
// too large to be seconds). exact is false unless v was already RFC 3339.
func timeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, true
	case string:
		if x == "" {
			return time.Time{}, false
		}
		for i, layout := range legacyTimeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, i == 0
			}
		}
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), false
		}
		return time.Unix(n, 0).UTC(), false
	}
	return time.Time{}, false
}

// snakeToCamel converts "local_path" to "localPath". Keys without an
// underscore are returned as is.
func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
