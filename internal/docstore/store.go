// Package docstore owns the persisted document collection: id assignment,
// workflow state transitions, and access to each document's content.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/zulandar/signoff/internal/filename"
	"github.com/zulandar/signoff/internal/jsonfile"
	"github.com/zulandar/signoff/internal/models"
	"go.uber.org/zap"
)

// Defaults applied by Add when the input leaves a field empty.
const (
	DefaultStatus       = "Preliminary"
	DefaultFileStatus   = "Checked In"
	DefaultLanguage     = "en"
	DefaultDocumentType = "ORIGINAL"
)

var docIDRe = regexp.MustCompile(`^DOC-(\d+)$`)

// Extractor pulls text and images out of a document file.
type Extractor interface {
	Text(ctx context.Context, path string) (string, error)
	Images(ctx context.Context, path string) ([]string, error)
}

// collection is the on-disk shape of the documents file.
type collection struct {
	Documents []models.Document `json:"documents"`
}

// Store is the file-backed document record store. A single process owns the
// file; writers replace the whole collection on every change.
type Store struct {
	path      string
	roots     []string
	extractor Extractor
	log       *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// StoreOpts holds parameters for opening a Store.
type StoreOpts struct {
	Path         string    // documents JSON file
	BaseDir      string    // base for relative LocalPath values; defaults to "."
	FallbackDirs []string  // extra bases searched after BaseDir
	Extractor    Extractor // optional; without it Text and Images return empty
	Logger       *zap.Logger
	Now          func() time.Time // defaults to time.Now
}

// Open creates a Store for opts.Path, migrating a legacy-shaped file first.
func Open(opts StoreOpts) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("docstore: path is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	base := opts.BaseDir
	if base == "" {
		base = "."
	}

	report, err := Migrate(opts.Path)
	if err != nil {
		return nil, err
	}
	if report.Migrated {
		log.Info("docstore: migrated legacy documents file",
			zap.String("path", opts.Path),
			zap.Int("documents", report.Documents),
			zap.String("backup", report.Backup))
	}

	return &Store{
		path:      opts.Path,
		roots:     append([]string{base}, opts.FallbackDirs...),
		extractor: opts.Extractor,
		log:       log,
		now:       now,
	}, nil
}

// Path returns the documents file location.
func (s *Store) Path() string { return s.path }

// Input describes a document to add. Only Title and LocalPath are expected
// from callers; everything else has a default.
type Input struct {
	Title            string
	LocalPath        string
	DocType          string
	DocNumber        string
	DocClass         string
	Revision         string
	Sheet            string
	Responsible      string
	Status           string
	FileStatus       string
	Language         string
	DocumentType     string
	CreatedBy        string
	ModifiedBy       string
	OriginalFilename string
}

// Add assigns the next DOC-### id, fills defaults and persists the record.
func (s *Store) Add(in Input) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.load()
	now := s.now().UTC()

	doc := models.Document{
		ID:               nextID(docs),
		State:            models.StatePendingApproval,
		LocalPath:        in.LocalPath,
		DocType:          in.DocType,
		Title:            in.Title,
		DocNumber:        in.DocNumber,
		DocClass:         in.DocClass,
		Revision:         in.Revision,
		Sheet:            in.Sheet,
		Responsible:      in.Responsible,
		Status:           orDefault(in.Status, DefaultStatus),
		FileStatus:       orDefault(in.FileStatus, DefaultFileStatus),
		Language:         orDefault(in.Language, DefaultLanguage),
		DocumentType:     orDefault(in.DocumentType, DefaultDocumentType),
		CreatedAt:        now,
		ModifiedAt:       now,
		CreatedBy:        in.CreatedBy,
		ModifiedBy:       in.ModifiedBy,
		OriginalFilename: in.OriginalFilename,
	}
	fillFromFilename(&doc)
	if doc.DocType == "" {
		doc.DocType = inferDocType(&doc)
	}

	docs = append(docs, doc)
	if err := jsonfile.Write(s.path, collection{Documents: docs}); err != nil {
		return nil, fmt.Errorf("docstore: add %s: %w", doc.ID, err)
	}
	return &doc, nil
}

// ListAll returns every document. Read failures degrade to an empty list.
func (s *Store) ListAll() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ListPending returns documents whose state is pendingApproval.
func (s *Store) ListPending() []models.Document {
	return s.ListByState(models.StatePendingApproval)
}

// ListByState returns documents in the given (normalized) state.
func (s *Store) ListByState(state string) []models.Document {
	want := models.NormalizeState(state)
	var out []models.Document
	for _, d := range s.ListAll() {
		if d.State == want {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the document with the given id.
func (s *Store) Get(id string) (*models.Document, bool) {
	for _, d := range s.ListAll() {
		if d.ID == id {
			return &d, true
		}
	}
	return nil, false
}

// SetState moves a document to state. It returns false when the id is
// unknown, the state is not a workflow state, or the write fails. Only the
// state field changes, so repeating a call leaves the record identical.
func (s *Store) SetState(id, state string) bool {
	state = models.NormalizeState(state)
	if !models.ValidState(state) {
		s.log.Warn("docstore: set state: invalid state", zap.String("id", id), zap.String("state", state))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.load()
	idx := -1
	for i := range docs {
		if docs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	docs[idx].State = state
	if err := jsonfile.Write(s.path, collection{Documents: docs}); err != nil {
		s.log.Error("docstore: set state: write failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// Text returns the extracted text of doc's content, or "" when the file
// cannot be found or extracted.
func (s *Store) Text(ctx context.Context, doc *models.Document) string {
	path, ok := s.resolve(doc)
	if !ok || s.extractor == nil {
		return ""
	}
	text, err := s.extractor.Text(ctx, path)
	if err != nil {
		s.log.Debug("docstore: text extraction failed", zap.String("id", doc.ID), zap.String("path", path), zap.Error(err))
		return ""
	}
	return text
}

// Images returns data-URL images embedded in doc's content. Only
// presentation files carry images; anything else yields nil.
func (s *Store) Images(ctx context.Context, doc *models.Document) []string {
	if inferDocType(doc) != filename.DocTypePowerPoint && doc.DocType != filename.DocTypePowerPoint {
		return nil
	}
	path, ok := s.resolve(doc)
	if !ok || s.extractor == nil {
		return nil
	}
	images, err := s.extractor.Images(ctx, path)
	if err != nil {
		s.log.Debug("docstore: image extraction failed", zap.String("id", doc.ID), zap.String("path", path), zap.Error(err))
		return nil
	}
	return images
}

// resolve finds the first existing file for doc.LocalPath: absolute paths
// as given, relative paths against each configured root in order.
func (s *Store) resolve(doc *models.Document) (string, bool) {
	if doc == nil || doc.LocalPath == "" {
		return "", false
	}
	var candidates []string
	if filepath.IsAbs(doc.LocalPath) {
		candidates = []string{doc.LocalPath}
	} else {
		for _, root := range s.roots {
			candidates = append(candidates, filepath.Join(root, doc.LocalPath))
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// load reads the collection. Missing and corrupt files read as empty.
func (s *Store) load() []models.Document {
	var c collection
	if err := jsonfile.Read(s.path, &c); err != nil {
		if !errors.Is(err, jsonfile.ErrNotExist) {
			s.log.Warn("docstore: read failed, treating as empty", zap.String("path", s.path), zap.Error(err))
		}
		return nil
	}
	for i := range c.Documents {
		c.Documents[i].State = models.NormalizeState(c.Documents[i].State)
		if c.Documents[i].DocType == "" {
			c.Documents[i].DocType = inferDocType(&c.Documents[i])
		}
	}
	return c.Documents
}

// nextID returns DOC-(max+1), zero-padded to three digits.
func nextID(docs []models.Document) string {
	max := 0
	for _, d := range docs {
		m := docIDRe.FindStringSubmatch(d.ID)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("DOC-%03d", max+1)
}

// inferDocType derives the type from the original filename, falling back
// to the local path.
func inferDocType(doc *models.Document) string {
	if doc.OriginalFilename != "" {
		if t := filename.DocTypeForPath(doc.OriginalFilename); t != filename.DocTypeUnknown {
			return t
		}
	}
	return filename.DocTypeForPath(doc.LocalPath)
}

// fillFromFilename fills empty identity fields from the original filename
// when it follows the structured naming convention.
func fillFromFilename(doc *models.Document) {
	if doc.OriginalFilename == "" {
		return
	}
	p := filename.Parse(doc.OriginalFilename)
	if doc.Title == "" {
		doc.Title = p.Title
	}
	if !p.IsStructuredFormat {
		return
	}
	if doc.DocClass == "" {
		doc.DocClass = p.DocClass
	}
	if doc.DocNumber == "" {
		doc.DocNumber = p.DocNumber
	}
	if doc.Sheet == "" {
		doc.Sheet = p.DocSheet
	}
	if doc.Revision == "" {
		doc.Revision = p.DocRevision
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
