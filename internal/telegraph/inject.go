package telegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/metrics"
	"github.com/zulandar/signoff/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidInjection is returned when an injection request is missing a
// required field.
var ErrInvalidInjection = errors.New("telegraph: invalid injection")

// InjectRequest is a document submitted from outside the chat surface.
type InjectRequest struct {
	docstore.Input

	// Notify the user with this identity or email. Both empty means
	// broadcast to whoever greets the assistant next.
	NotifyIdentity string
	NotifyEmail    string
}

// InjectResult reports what happened to an injected document.
type InjectResult struct {
	Document       *models.Document
	NotificationID string
	Delivered      bool // a "new document" card was sent right away
	Queued         bool // the notification waits for the user's next greeting
}

// Inject adds a document, queues its notification and, when the target's
// conversation is already known, delivers the card immediately.
func (o *Orchestrator) Inject(ctx context.Context, req InjectRequest) (*InjectResult, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.OriginalFilename) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInjection)
	}
	if strings.TrimSpace(req.LocalPath) == "" {
		return nil, fmt.Errorf("%w: local path is required", ErrInvalidInjection)
	}

	doc, err := o.store.Add(req.Input)
	if err != nil {
		return nil, fmt.Errorf("telegraph: inject: %w", err)
	}
	metrics.DocumentsInjected.Inc()

	var target *models.NotificationTarget
	if req.NotifyIdentity != "" || req.NotifyEmail != "" {
		target = &models.NotificationTarget{Identity: req.NotifyIdentity, Email: req.NotifyEmail}
	}
	n, err := o.queue.Enqueue(doc, target)
	if err != nil {
		return nil, fmt.Errorf("telegraph: inject: %w", err)
	}
	kind := "targeted"
	if n.Target == nil {
		kind = "broadcast"
	}
	metrics.NotificationsQueued.WithLabelValues(kind).Inc()

	res := &InjectResult{Document: doc, NotificationID: n.ID, Queued: true}
	if n.Target == nil {
		return res, nil
	}

	ref, ok := o.dir.Find(n.Target.Identity, n.Target.Email)
	if !ok {
		o.log.Info("telegraph: inject: target not reachable yet, queued",
			zap.String("document", doc.ID),
			zap.String("identity", n.Target.Identity),
			zap.String("email", n.Target.Email))
		return res, nil
	}
	if _, err := o.gateway.Send(ctx, ref.ConversationID, NewDocumentCard(n.Document, 0)); err != nil {
		o.log.Warn("telegraph: inject: proactive delivery failed, queued",
			zap.String("document", doc.ID),
			zap.String("conversation", ref.ConversationID),
			zap.Error(err))
		return res, nil
	}
	metrics.NotificationsDelivered.WithLabelValues(metrics.PathProactive).Inc()
	o.queue.Remove(n.ID)
	res.Delivered = true
	res.Queued = false
	return res, nil
}
