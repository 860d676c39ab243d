// Package messaging provides the "new document" notification queue.
//
// Entries are admitted most-recent-first into a capped collection and
// consumed by DrainFor, which removes what it returns before the caller has
// rendered anything. Delivery is therefore at most once per entry.
package messaging

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/signoff/internal/jsonfile"
	"github.com/zulandar/signoff/internal/models"
	"go.uber.org/zap"
)

// DefaultMaxEntries caps the queue when QueueOpts.MaxEntries is zero.
const DefaultMaxEntries = 200

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// Requester is the user asking for their notifications.
type Requester struct {
	Identity string
	Email    string
}

type collection struct {
	Notifications []models.Notification `json:"notifications"`
}

// Queue is the file-backed notification queue.
type Queue struct {
	path  string
	max   int
	log   *zap.Logger
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// QueueOpts holds parameters for creating a Queue.
type QueueOpts struct {
	Path       string
	MaxEntries int // defaults to DefaultMaxEntries
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewQueue creates a Queue backed by opts.Path.
func NewQueue(opts QueueOpts) (*Queue, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("messaging: path is required")
	}
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("messaging: max entries must be >= 0, got %d", opts.MaxEntries)
	}
	max := opts.MaxEntries
	if max == 0 {
		max = DefaultMaxEntries
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		path:  opts.Path,
		max:   max,
		log:   log,
		now:   now,
		newID: func() string { return uuid.New().String() },
	}, nil
}

// Enqueue adds a notification for doc. A nil target queues a broadcast. A
// target without an email gets one derived from the document's
// responsible, modifier or creator fields when any of them holds an
// address. Entries beyond the cap are dropped oldest first.
func (q *Queue) Enqueue(doc *models.Document, target *models.NotificationTarget) (*models.Notification, error) {
	if doc == nil {
		return nil, fmt.Errorf("messaging: document is required")
	}

	n := models.Notification{
		ID:        q.newID(),
		CreatedAt: q.now().UTC(),
		Target:    resolveTarget(doc, target),
		Document:  models.SnapshotOf(doc),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries := append([]models.Notification{n}, q.load()...)
	if len(entries) > q.max {
		entries = entries[:q.max]
	}
	if err := jsonfile.Write(q.path, collection{Notifications: entries}); err != nil {
		return nil, fmt.Errorf("messaging: enqueue %s: %w", doc.ID, err)
	}
	return &n, nil
}

// DrainFor removes and returns every entry deliverable to r, in queue
// order. When the remainder cannot be persisted nothing is returned, so an
// entry is never handed out twice.
func (q *Queue) DrainFor(r Requester) []models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	var matched, rest []models.Notification
	for _, n := range entries {
		if Matches(&n, r) {
			matched = append(matched, n)
		} else {
			rest = append(rest, n)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	if rest == nil {
		rest = []models.Notification{}
	}
	if err := jsonfile.Write(q.path, collection{Notifications: rest}); err != nil {
		q.log.Error("messaging: drain: write failed", zap.String("identity", r.Identity), zap.Error(err))
		return nil
	}
	return matched
}

// Remove deletes the entry with the given id. It reports whether an entry
// was removed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	out := make([]models.Notification, 0, len(entries))
	for _, n := range entries {
		if n.ID != id {
			out = append(out, n)
		}
	}
	if len(out) == len(entries) {
		return false
	}
	if err := jsonfile.Write(q.path, collection{Notifications: out}); err != nil {
		q.log.Error("messaging: remove: write failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load())
}

// Matches reports whether n is deliverable to r. Broadcasts match anyone;
// targeted entries match on identity or email, case-insensitively.
func Matches(n *models.Notification, r Requester) bool {
	if n.Target.IsZero() {
		return true
	}
	if sameKey(n.Target.Identity, r.Identity) {
		return true
	}
	return sameKey(n.Target.Email, r.Email)
}

func sameKey(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// resolveTarget copies target, filling a missing email from doc. A target
// that ends up with neither identity nor email becomes a broadcast.
func resolveTarget(doc *models.Document, target *models.NotificationTarget) *models.NotificationTarget {
	if target == nil {
		return nil
	}
	t := models.NotificationTarget{
		Identity: strings.TrimSpace(target.Identity),
		Email:    strings.TrimSpace(target.Email),
	}
	if t.Email == "" {
		t.Email = DeriveEmail(doc)
	}
	if t.IsZero() {
		return nil
	}
	return &t
}

// DeriveEmail returns the first email-shaped substring found in the
// document's responsible, modifier or creator fields.
func DeriveEmail(doc *models.Document) string {
	for _, field := range []string{doc.Responsible, doc.ModifiedBy, doc.CreatedBy} {
		if m := emailRe.FindString(field); m != "" {
			return m
		}
	}
	return ""
}

func (q *Queue) load() []models.Notification {
	var c collection
	if err := jsonfile.Read(q.path, &c); err != nil {
		if !jsonfile.IsNotExist(err) {
			q.log.Warn("messaging: read failed, treating as empty", zap.String("path", q.path), zap.Error(err))
		}
		return nil
	}
	return c.Notifications
}
