// Package directory maps user identities and emails to the conversation
// where the assistant can reach them.
package directory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/signoff/internal/jsonfile"
	"github.com/zulandar/signoff/internal/models"
	"go.uber.org/zap"
)

// Entry is the input to Upsert. Identity and Email are both optional but at
// least one must be non-blank for anything to be stored.
type Entry struct {
	Identity        string
	Email           string
	ConversationID  string
	ChannelEndpoint string
	Platform        string
	UserLabel       string
}

// file is the on-disk shape: two maps pointing at the same snapshots.
type file struct {
	ByIdentity map[string]models.ConversationRef `json:"byIdentity"`
	ByEmail    map[string]models.ConversationRef `json:"byEmail"`
}

// Directory is the file-backed conversation directory.
type Directory struct {
	path string
	log  *zap.Logger
	now  func() time.Time

	mu sync.Mutex
}

// Opts holds parameters for creating a Directory.
type Opts struct {
	Path   string
	Logger *zap.Logger
	Now    func() time.Time
}

// New creates a Directory backed by opts.Path.
func New(opts Opts) (*Directory, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("directory: path is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Directory{path: opts.Path, log: log, now: now}, nil
}

// normKey lower-cases and trims a lookup key.
func normKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Upsert writes one snapshot under the identity key and the email key,
// whichever are present. A later upsert for the same key replaces the
// earlier snapshot entirely. Failures are logged, not returned.
func (d *Directory) Upsert(e Entry) {
	idKey, emailKey := normKey(e.Identity), normKey(e.Email)
	if idKey == "" && emailKey == "" {
		return
	}
	if strings.TrimSpace(e.ConversationID) == "" {
		d.log.Debug("directory: upsert without conversation id ignored", zap.String("identity", e.Identity))
		return
	}

	ref := models.ConversationRef{
		ConversationID:  e.ConversationID,
		ChannelEndpoint: e.ChannelEndpoint,
		Platform:        e.Platform,
		UpdatedAt:       d.now().UTC(),
		UserLabel:       e.UserLabel,
		Email:           strings.TrimSpace(e.Email),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f := d.load()
	if idKey != "" {
		f.ByIdentity[idKey] = ref
	}
	if emailKey != "" {
		f.ByEmail[emailKey] = ref
	}
	if err := jsonfile.Write(d.path, f); err != nil {
		d.log.Warn("directory: upsert failed",
			zap.String("identity", e.Identity),
			zap.String("conversation", e.ConversationID),
			zap.Error(err))
	}
}

// ByIdentity returns the reference stored under identity.
func (d *Directory) ByIdentity(identity string) (*models.ConversationRef, bool) {
	key := normKey(identity)
	if key == "" {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.load().ByIdentity[key]
	if !ok {
		return nil, false
	}
	return &ref, true
}

// Find returns the reference for identity, falling back to email.
func (d *Directory) Find(identity, email string) (*models.ConversationRef, bool) {
	idKey, emailKey := normKey(identity), normKey(email)
	if idKey == "" && emailKey == "" {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f := d.load()
	if idKey != "" {
		if ref, ok := f.ByIdentity[idKey]; ok {
			return &ref, true
		}
	}
	if emailKey != "" {
		if ref, ok := f.ByEmail[emailKey]; ok {
			return &ref, true
		}
	}
	return nil, false
}

// FindConversation returns the conversation id for identity, falling back
// to email. An identity match wins even when the email points elsewhere.
func (d *Directory) FindConversation(identity, email string) (string, bool) {
	ref, ok := d.Find(identity, email)
	if !ok {
		return "", false
	}
	return ref.ConversationID, true
}

// All returns every known conversation once, most recently updated first.
func (d *Directory) All() []models.ConversationRef {
	d.mu.Lock()
	f := d.load()
	d.mu.Unlock()

	seen := make(map[string]models.ConversationRef)
	collect := func(m map[string]models.ConversationRef) {
		for _, ref := range m {
			if prev, ok := seen[ref.ConversationID]; ok && !ref.UpdatedAt.After(prev.UpdatedAt) {
				continue
			}
			seen[ref.ConversationID] = ref
		}
	}
	collect(f.ByIdentity)
	collect(f.ByEmail)

	out := make([]models.ConversationRef, 0, len(seen))
	for _, ref := range seen {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ConversationID < out[j].ConversationID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// load reads the directory file; missing and corrupt files read as empty.
func (d *Directory) load() file {
	f := file{}
	if err := jsonfile.Read(d.path, &f); err != nil && !jsonfile.IsNotExist(err) {
		d.log.Warn("directory: read failed, treating as empty", zap.String("path", d.path), zap.Error(err))
		f = file{}
	}
	if f.ByIdentity == nil {
		f.ByIdentity = make(map[string]models.ConversationRef)
	}
	if f.ByEmail == nil {
		f.ByEmail = make(map[string]models.ConversationRef)
	}
	return f
}
