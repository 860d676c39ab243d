// Package extract reads text and embedded images out of document files.
//
// Plain text formats are read directly. Word and PowerPoint files are opened
// as zip archives and their XML parts are scanned for text runs.
// Spreadsheets are read with excelize and PDFs with ledongthuc/pdf.
// Presentation media is returned as data URLs so it can be handed to a
// vision-capable model.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for file types this package cannot read.
var ErrUnsupported = errors.New("extract: unsupported file type")

// Defaults for Files limits.
const (
	DefaultMaxTextBytes  = 200_000
	DefaultMaxImages     = 5
	DefaultMaxImageBytes = 4 << 20
)

var (
	slideRe  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	mediaExt = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
	}
	plainExt = map[string]bool{
		"":      true,
		".txt":  true,
		".md":   true,
		".csv":  true,
		".json": true,
		".log":  true,
		".xml":  true,
	}
)

// Files extracts content from files on the local filesystem.
type Files struct {
	MaxTextBytes  int // text is truncated to this many bytes
	MaxImages     int // at most this many images are returned
	MaxImageBytes int // larger media entries are skipped
}

// New returns a Files extractor with default limits.
func New() *Files {
	return &Files{
		MaxTextBytes:  DefaultMaxTextBytes,
		MaxImages:     DefaultMaxImages,
		MaxImageBytes: DefaultMaxImageBytes,
	}
}

// Text returns the readable text of the file at p.
func (f *Files) Text(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(p))

	var (
		text string
		err  error
	)
	switch {
	case plainExt[ext]:
		text, err = readPlain(p)
	case ext == ".docx":
		text, err = zipText(p, func(name string) bool { return name == "word/document.xml" })
	case ext == ".pptx":
		text, err = zipText(p, func(name string) bool { return slideRe.MatchString(name) })
	case ext == ".xlsx" || ext == ".xlsm":
		text, err = sheetText(p)
	case ext == ".pdf":
		text, err = pdfText(p, f.maxText())
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}
	return truncate(strings.TrimSpace(text), f.maxText()), nil
}

// Images returns the media of a presentation as data URLs, in archive
// order. Non-presentation files return ErrUnsupported.
func (f *Files) Images(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(p)) != ".pptx" {
		return nil, fmt.Errorf("%w: images from %s", ErrUnsupported, filepath.Ext(p))
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", p, err)
	}
	defer zr.Close()

	var out []string
	for _, zf := range zr.File {
		if len(out) >= f.maxImages() {
			break
		}
		if !strings.HasPrefix(zf.Name, "ppt/media/") {
			continue
		}
		mime, ok := mediaExt[strings.ToLower(path.Ext(zf.Name))]
		if !ok || int64(zf.UncompressedSize64) > int64(f.maxImageBytes()) {
			continue
		}
		data, err := readEntry(zf)
		if err != nil {
			return nil, err
		}
		out = append(out, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return out, nil
}

func (f *Files) maxText() int {
	if f.MaxTextBytes > 0 {
		return f.MaxTextBytes
	}
	return DefaultMaxTextBytes
}

func (f *Files) maxImages() int {
	if f.MaxImages > 0 {
		return f.MaxImages
	}
	return DefaultMaxImages
}

func (f *Files) maxImageBytes() int {
	if f.MaxImageBytes > 0 {
		return f.MaxImageBytes
	}
	return DefaultMaxImageBytes
}

func readPlain(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("extract: read %s: %w", p, err)
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return string(data), nil
}

// zipText concatenates the text of every archive part accepted by want.
// Slides are visited in numeric order.
func zipText(p string, want func(string) bool) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", fmt.Errorf("extract: open %s: %w", p, err)
	}
	defer zr.Close()

	var parts []*zip.File
	for _, zf := range zr.File {
		if want(zf.Name) {
			parts = append(parts, zf)
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return partOrder(parts[i].Name) < partOrder(parts[j].Name)
	})

	var b strings.Builder
	for _, zf := range parts {
		data, err := readEntry(zf)
		if err != nil {
			return "", err
		}
		text, err := xmlText(data)
		if err != nil {
			return "", fmt.Errorf("extract: %s in %s: %w", zf.Name, p, err)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// partOrder sorts numbered slides by number.
func partOrder(name string) int {
	if m := slideRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// sheetText renders every worksheet as tab-separated rows under its sheet
// name. Empty rows and sheets are skipped.
func sheetText(p string) (string, error) {
	wb, err := excelize.OpenFile(p)
	if err != nil {
		return "", fmt.Errorf("extract: open %s: %w", p, err)
	}
	defer wb.Close()

	var b strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("extract: sheet %s in %s: %w", sheet, p, err)
		}
		var lines []string
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# " + sheet + "\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String(), nil
}

// pdfText returns the plain text of every page, reading at most limit
// bytes. The pdf reader panics on some malformed files; that is reported
// as an error.
func pdfText(p string, limit int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: malformed pdf %s: %v", p, r)
		}
	}()

	fh, r, err := pdf.Open(p)
	if err != nil {
		return "", fmt.Errorf("extract: open %s: %w", p, err)
	}
	defer fh.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: pdf text %s: %w", p, err)
	}
	data, err := io.ReadAll(io.LimitReader(plain, int64(limit)+utf8.UTFMax))
	if err != nil {
		return "", fmt.Errorf("extract: pdf text %s: %w", p, err)
	}
	return string(data), nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("extract: open entry %s: %w", zf.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("extract: read entry %s: %w", zf.Name, err)
	}
	return data, nil
}

// xmlText collects character data from text-run elements (local name "t")
// and breaks lines at paragraph boundaries.
func xmlText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		b      strings.Builder
		inText int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText++
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText--
			case "p":
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText > 0 {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}
