package telegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/directory"
	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/filename"
	"github.com/zulandar/signoff/internal/identity"
	"github.com/zulandar/signoff/internal/kv"
	"github.com/zulandar/signoff/internal/llm"
	"github.com/zulandar/signoff/internal/messaging"
	"github.com/zulandar/signoff/internal/metrics"
	"github.com/zulandar/signoff/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTypingInterval is the default period of the typing indicator.
const DefaultTypingInterval = 3 * time.Second

// FlagStore holds the one-shot per-conversation flags. *kv.Store
// satisfies it.
type FlagStore interface {
	GetBool(key string) (bool, error)
	SetBool(key string, v bool) error
}

// IdentityResolved reports the outcome of a background email lookup.
type IdentityResolved struct {
	Identity       string
	Email          string
	ConversationID string
	Err            error
}

// Orchestrator handles inbound events: it keeps the conversation directory
// current, classifies each event and renders the reply, running slow work
// behind a loading placeholder.
type Orchestrator struct {
	gateway        Gateway
	store          *docstore.Store
	queue          *messaging.Queue
	dir            *directory.Directory
	flags          FlagStore
	llm            llm.Service
	resolver       identity.Resolver
	audit          *gorm.DB
	log            *zap.Logger
	typingInterval time.Duration

	resolved chan IdentityResolved
	lookups  sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]bool // identities with a lookup running
}

// OrchestratorOpts holds parameters for creating an Orchestrator.
type OrchestratorOpts struct {
	Gateway        Gateway
	Store          *docstore.Store
	Queue          *messaging.Queue
	Directory      *directory.Directory
	Flags          FlagStore
	LLM            llm.Service       // defaults to llm.Disabled
	Resolver       identity.Resolver // optional; enables background email lookup
	Audit          *gorm.DB          // optional; records approval events
	Logger         *zap.Logger
	TypingInterval time.Duration // defaults to DefaultTypingInterval
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("telegraph: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("telegraph: document store is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("telegraph: notification queue is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("telegraph: directory is required")
	}
	if opts.Flags == nil {
		return nil, fmt.Errorf("telegraph: flag store is required")
	}
	svc := opts.LLM
	if svc == nil {
		svc = llm.Disabled{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := opts.TypingInterval
	if interval == 0 {
		interval = DefaultTypingInterval
	}
	return &Orchestrator{
		gateway:        opts.Gateway,
		store:          opts.Store,
		queue:          opts.Queue,
		dir:            opts.Directory,
		flags:          opts.Flags,
		llm:            svc,
		resolver:       opts.Resolver,
		audit:          opts.Audit,
		log:            log,
		typingInterval: interval,
		resolved:       make(chan IdentityResolved, 16),
		inflight:       make(map[string]bool),
	}, nil
}

// Resolved delivers the outcome of each background email lookup. Results
// are dropped when nobody reads the channel.
func (o *Orchestrator) Resolved() <-chan IdentityResolved {
	return o.resolved
}

// Wait blocks until every background lookup has finished.
func (o *Orchestrator) Wait() {
	o.lookups.Wait()
}

// Handle processes one inbound event to completion.
func (o *Orchestrator) Handle(ctx context.Context, ev InboundEvent) {
	if o.isSelf(ev) || ev.ConversationID == "" {
		return
	}

	o.propagateIdentity(ctx, ev)

	welcomed, err := o.flags.GetBool(kv.WelcomedKey(ev.ConversationID))
	if err != nil {
		o.log.Warn("telegraph: read welcome flag", zap.String("conversation", ev.ConversationID), zap.Error(err))
	}
	r, action := classify(ev, welcomed)
	o.log.Debug("telegraph: recv",
		zap.String("conversation", ev.ConversationID),
		zap.String("user", ev.SenderIdentity),
		zap.String("route", r.String()),
		zap.String("text", truncate(ev.Text, 80)))

	switch r {
	case routeAction:
		o.handleAction(ctx, ev, action)
	case routeWelcome:
		o.welcome(ctx, ev)
	case routeFile:
		o.classifyFile(ctx, ev)
	case routeChange:
		o.changeRequest(ctx, ev)
	default:
		o.send(ctx, ev.ConversationID, TextMessage("You said: %s", cleanText(ev.Text)))
	}
}

func (o *Orchestrator) isSelf(ev InboundEvent) bool {
	b, ok := o.gateway.(BotUserIDer)
	if !ok {
		return false
	}
	id := b.BotUserID()
	return id != "" && ev.SenderIdentity == id
}

// handleAction dispatches a card submission or free-text action.
func (o *Orchestrator) handleAction(ctx context.Context, ev InboundEvent, a *Action) {
	switch a.Verb {
	case ActionList:
		o.send(ctx, ev.ConversationID, PendingSummaryCard(o.store.ListPending()))
	case ActionSelect:
		o.withDocument(ctx, ev, a.DocID, func(doc *models.Document) {
			o.summarize(ctx, ev, doc)
		})
	case ActionAsk:
		o.withDocument(ctx, ev, a.DocID, func(doc *models.Document) {
			o.answer(ctx, ev, doc, a.Question)
		})
	case ActionApprove:
		o.withDocument(ctx, ev, a.DocID, func(doc *models.Document) {
			o.decide(ctx, ev, doc, models.StateApproved)
		})
	case ActionReject:
		o.withDocument(ctx, ev, a.DocID, func(doc *models.Document) {
			o.decide(ctx, ev, doc, models.StateRejected)
		})
	case ActionDismiss:
		o.dismiss(ctx, ev)
	case ActionAckChange:
		doc, _ := o.store.Get(a.DocID)
		o.log.Info("telegraph: change request acknowledged",
			zap.String("document", a.DocID), zap.String("user", ev.SenderIdentity))
		o.send(ctx, ev.ConversationID, ChangeAckCard(doc))
	case ActionChangeDetails:
		doc, _ := o.store.Get(a.DocID)
		o.send(ctx, ev.ConversationID, ChangeDetailsCard(doc))
	case ActionConfirmFile:
		o.send(ctx, ev.ConversationID, FileConfirmedCard(a.Value, filename.Parse(a.Value)))
	case ActionRejectFile:
		o.send(ctx, ev.ConversationID, FileRejectedCard(a.Value))
	default:
		o.send(ctx, ev.ConversationID, TextMessage("Sorry, I don't know how to %q.", a.Verb))
	}
}

// withDocument looks up id and calls fn, or tells the user it is unknown.
func (o *Orchestrator) withDocument(ctx context.Context, ev InboundEvent, id string, fn func(*models.Document)) {
	if id == "" {
		o.send(ctx, ev.ConversationID, TextMessage("Which document? Say \"list\" to see what's pending."))
		return
	}
	doc, ok := o.store.Get(id)
	if !ok {
		o.send(ctx, ev.ConversationID, TextMessage("I couldn't find document %s.", id))
		return
	}
	fn(doc)
}

func (o *Orchestrator) summarize(ctx context.Context, ev InboundEvent, doc *models.Document) {
	o.runWithPlaceholder(ctx, ev, LoadingCard("Reading "+doc.DisplayName()+"…"),
		func(ctx context.Context) (OutboundMessage, error) {
			text := o.store.Text(ctx, doc)
			images := o.store.Images(ctx, doc)
			summary, err := o.llm.Summarize(ctx, text, images)
			if err != nil {
				o.log.Warn("telegraph: summarize", zap.String("document", doc.ID), zap.Error(err))
				summary = "Summary unavailable: " + err.Error()
			}
			return DocumentCard(doc, summary), nil
		})
}

func (o *Orchestrator) answer(ctx context.Context, ev InboundEvent, doc *models.Document, question string) {
	question = strings.TrimSpace(question)
	if question == "" {
		o.send(ctx, ev.ConversationID, TextMessage("What would you like to know about %s? Reply with \"ask %s <question>\".", doc.ID, doc.ID))
		return
	}
	o.runWithPlaceholder(ctx, ev, LoadingCard("Looking for the answer in "+doc.ID+"…"),
		func(ctx context.Context) (OutboundMessage, error) {
			text := o.store.Text(ctx, doc)
			images := o.store.Images(ctx, doc)
			answer, err := o.llm.Answer(ctx, text, question, images)
			if err != nil {
				o.log.Warn("telegraph: answer", zap.String("document", doc.ID), zap.Error(err))
				answer = "Answer unavailable: " + err.Error()
			}
			return AnswerCard(doc, question, answer), nil
		})
}

// decide applies an approve or reject transition and records it.
func (o *Orchestrator) decide(ctx context.Context, ev InboundEvent, doc *models.Document, state string) {
	verb := "Approving"
	if state == models.StateRejected {
		verb = "Rejecting"
	}
	o.runWithPlaceholder(ctx, ev, LoadingCard(verb+" "+doc.ID+"…"),
		func(ctx context.Context) (OutboundMessage, error) {
			if !o.store.SetState(doc.ID, state) {
				return OutboundMessage{}, fmt.Errorf("telegraph: set %s to %s failed", doc.ID, state)
			}
			metrics.DocumentTransitions.WithLabelValues(state).Inc()
			o.recordApproval(doc.ID, state, ev)

			updated, ok := o.store.Get(doc.ID)
			if !ok {
				updated = doc
				updated.State = state
			}
			return DecisionCard(updated, ev.SenderName), nil
		})
}

func (o *Orchestrator) recordApproval(docID, state string, ev InboundEvent) {
	if o.audit == nil {
		return
	}
	err := db.RecordApproval(o.audit, &models.ApprovalEvent{
		DocumentID:     docID,
		State:          state,
		ActorIdentity:  ev.SenderIdentity,
		ActorName:      ev.SenderName,
		ConversationID: ev.ConversationID,
	})
	if err != nil {
		o.log.Warn("telegraph: record approval", zap.String("document", docID), zap.Error(err))
	}
}

// dismiss removes the card the action came from, falling back to a short
// acknowledgement when the gateway cannot delete it.
func (o *Orchestrator) dismiss(ctx context.Context, ev InboundEvent) {
	if ev.ReplyToMessageID != "" {
		err := o.gateway.Delete(ctx, ev.ConversationID, ev.ReplyToMessageID)
		if err == nil {
			return
		}
		o.log.Debug("telegraph: dismiss: delete failed", zap.String("message", ev.ReplyToMessageID), zap.Error(err))
	}
	o.send(ctx, ev.ConversationID, TextMessage("Dismissed."))
}

// welcome sends the pending summary and the oldest queued notification for
// the sender, counting the rest, then marks the conversation as welcomed.
// The queue is newest first.
func (o *Orchestrator) welcome(ctx context.Context, ev InboundEvent) {
	o.send(ctx, ev.ConversationID, PendingSummaryCard(o.store.ListPending()))

	notes := o.queue.DrainFor(o.requester(ev))
	if len(notes) > 0 {
		oldest := notes[len(notes)-1]
		if _, err := o.gateway.Send(ctx, ev.ConversationID, NewDocumentCard(oldest.Document, len(notes)-1)); err != nil {
			o.log.Warn("telegraph: deliver notification",
				zap.String("notification", oldest.ID),
				zap.String("conversation", ev.ConversationID),
				zap.Error(err))
		} else {
			metrics.NotificationsDelivered.WithLabelValues(metrics.PathGreeting).Inc()
		}
	}

	if err := o.flags.SetBool(kv.WelcomedKey(ev.ConversationID), true); err != nil {
		o.log.Warn("telegraph: set welcome flag", zap.String("conversation", ev.ConversationID), zap.Error(err))
	}
}

// requester identifies the sender for notification matching, using the
// email from a previous lookup when the event carries none.
func (o *Orchestrator) requester(ev InboundEvent) messaging.Requester {
	r := messaging.Requester{Identity: ev.SenderIdentity, Email: ev.SenderEmail}
	if r.Email == "" {
		if ref, ok := o.dir.ByIdentity(ev.SenderIdentity); ok {
			r.Email = ref.Email
		}
	}
	return r
}

func (o *Orchestrator) classifyFile(ctx context.Context, ev InboundEvent) {
	for _, att := range ev.Attachments {
		o.send(ctx, ev.ConversationID, FileCard(att.Name, filename.Parse(att.Name)))
	}
}

func (o *Orchestrator) changeRequest(ctx context.Context, ev InboundEvent) {
	var doc *models.Document
	if id := changeTarget(cleanText(ev.Text)); id != "" {
		d, ok := o.store.Get(id)
		if !ok {
			o.send(ctx, ev.ConversationID, TextMessage("I couldn't find document %s.", id))
			return
		}
		doc = d
	}
	o.send(ctx, ev.ConversationID, ChangeRequestCard(doc))
}

// send delivers msg and logs a failure.
func (o *Orchestrator) send(ctx context.Context, conversationID string, msg OutboundMessage) string {
	id, err := o.gateway.Send(ctx, conversationID, msg)
	if err != nil {
		o.log.Warn("telegraph: send", zap.String("conversation", conversationID), zap.Error(err))
		return ""
	}
	return id
}

// propagateIdentity records where the sender can be reached. When no email
// is known for the sender, a detached lookup fills it in later.
func (o *Orchestrator) propagateIdentity(ctx context.Context, ev InboundEvent) {
	email := ev.SenderEmail
	if email == "" {
		if ref, ok := o.dir.ByIdentity(ev.SenderIdentity); ok {
			email = ref.Email
		}
	}
	entry := directory.Entry{
		Identity:        ev.SenderIdentity,
		Email:           email,
		ConversationID:  ev.ConversationID,
		ChannelEndpoint: ev.ChannelEndpoint,
		Platform:        ev.Platform,
		UserLabel:       ev.SenderName,
	}
	o.dir.Upsert(entry)

	if email == "" && strings.TrimSpace(ev.SenderIdentity) != "" && o.resolver != nil {
		o.lookupEmail(ctx, entry)
	}
}

// lookupEmail resolves entry's email in the background and re-upserts it.
// At most one lookup per identity runs at a time.
func (o *Orchestrator) lookupEmail(ctx context.Context, entry directory.Entry) {
	key := strings.ToLower(strings.TrimSpace(entry.Identity))
	o.mu.Lock()
	if o.inflight[key] {
		o.mu.Unlock()
		return
	}
	o.inflight[key] = true
	o.mu.Unlock()

	o.lookups.Add(1)
	go func() {
		defer o.lookups.Done()
		defer func() {
			o.mu.Lock()
			delete(o.inflight, key)
			o.mu.Unlock()
		}()

		res := IdentityResolved{Identity: entry.Identity, ConversationID: entry.ConversationID}
		email, err := o.resolver.ResolveEmail(context.WithoutCancel(ctx), entry.Identity)
		switch {
		case err != nil:
			res.Err = err
			if errors.Is(err, identity.ErrNotFound) {
				o.log.Debug("telegraph: no email for identity", zap.String("identity", entry.Identity))
			} else {
				o.log.Warn("telegraph: email lookup", zap.String("identity", entry.Identity), zap.Error(err))
			}
		case strings.TrimSpace(email) == "":
			res.Err = identity.ErrNotFound
		default:
			res.Email = email
			entry.Email = email
			o.dir.Upsert(entry)
		}

		select {
		case o.resolved <- res:
		default:
		}
	}()
}
