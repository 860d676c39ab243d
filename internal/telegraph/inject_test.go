package telegraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/signoff/internal/directory"
	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/messaging"
	"github.com/zulandar/signoff/internal/models"
)

func TestInject_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		in   docstore.Input
		want string
	}{
		{"no title", docstore.Input{LocalPath: "docs/a.txt"}, "title is required"},
		{"blank title", docstore.Input{Title: "  ", LocalPath: "docs/a.txt"}, "title is required"},
		{"no path", docstore.Input{Title: "Spec"}, "local path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.o.Inject(context.Background(), InjectRequest{Input: tt.in})
			if !errors.Is(err, ErrInvalidInjection) {
				t.Fatalf("err = %v, want ErrInvalidInjection", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want %q", err, tt.want)
			}
		})
	}
	if docs := h.store.ListAll(); len(docs) != 0 {
		t.Errorf("invalid injections created %d documents", len(docs))
	}
}

func TestInject_TitleFromFilename(t *testing.T) {
	h := newHarness(t)
	res, err := h.o.Inject(context.Background(), InjectRequest{Input: docstore.Input{
		LocalPath:        "docs/upload.docx",
		OriginalFilename: "Design Spec (01-TEST - 1028340 - 1 - A1) - 1.docx",
	}})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if res.Document.Title != "Design Spec" || res.Document.DocNumber != "1028340" {
		t.Errorf("document = %+v", res.Document)
	}
}

func TestInject_BroadcastQueued(t *testing.T) {
	h := newHarness(t)
	res, err := h.o.Inject(context.Background(), InjectRequest{Input: docstore.Input{Title: "Spec", LocalPath: "docs/spec.txt"}})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if res.Delivered || !res.Queued || res.NotificationID == "" {
		t.Errorf("result = %+v", res)
	}
	if h.gw.SentCount() != 0 {
		t.Errorf("broadcast should not be sent proactively, sent %d", h.gw.SentCount())
	}
	if h.queue.Len() != 1 {
		t.Errorf("queue len = %d", h.queue.Len())
	}
}

func TestInject_ProactiveDelivery(t *testing.T) {
	h := newHarness(t)
	h.dir.Upsert(directory.Entry{Identity: "u-ana", ConversationID: "D-ANA"})

	res, err := h.o.Inject(context.Background(), InjectRequest{
		Input:          docstore.Input{Title: "Spec", LocalPath: "docs/spec.txt"},
		NotifyIdentity: "U-ANA",
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if !res.Delivered || res.Queued {
		t.Errorf("result = %+v, want delivered", res)
	}
	last, ok := h.gw.LastSent()
	if !ok || last.ConversationID != "D-ANA" || cardTitle(last) != "New document for approval" {
		t.Errorf("sent = %+v", last)
	}
	if h.queue.Len() != 0 {
		t.Errorf("delivered notification still queued")
	}
}

func TestInject_DerivedEmailReachesConversation(t *testing.T) {
	h := newHarness(t)
	h.dir.Upsert(directory.Entry{Email: "ana@example.com", ConversationID: "D-ANA"})

	res, err := h.o.Inject(context.Background(), InjectRequest{
		Input: docstore.Input{
			Title:       "Spec",
			LocalPath:   "docs/spec.txt",
			Responsible: "Ana Lima <ana@example.com>",
		},
		NotifyIdentity: "u-unknown",
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if !res.Delivered {
		t.Errorf("result = %+v, want delivery via derived email", res)
	}
}

func TestInject_UnknownTargetStaysQueued(t *testing.T) {
	h := newHarness(t)
	res, err := h.o.Inject(context.Background(), InjectRequest{
		Input:       docstore.Input{Title: "Spec", LocalPath: "docs/spec.txt"},
		NotifyEmail: "nobody@example.com",
	})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if res.Delivered || !res.Queued {
		t.Errorf("result = %+v", res)
	}

	got := h.queue.DrainFor(messaging.Requester{Email: "NOBODY@example.com"})
	if len(got) != 1 || got[0].Target.Email != "nobody@example.com" {
		t.Errorf("queued = %+v", got)
	}
}

func TestInject_DeliveryFailureStaysQueued(t *testing.T) {
	h := newHarness(t)
	h.dir.Upsert(directory.Entry{Identity: "u-ana", ConversationID: "D-ANA"})
	h.gw.FailSend(errors.New("channel archived"))

	res, err := h.o.Inject(context.Background(), InjectRequest{
		Input:          docstore.Input{Title: "Spec", LocalPath: "docs/spec.txt"},
		NotifyIdentity: "u-ana",
	})
	if err != nil {
		t.Fatalf("Inject should not fail on delivery errors: %v", err)
	}
	if res.Delivered || !res.Queued || h.queue.Len() != 1 {
		t.Errorf("result = %+v, queue len = %d", res, h.queue.Len())
	}
}

// Inject a document with no target, then greet from an arbitrary user: the
// broadcast notification is drained and delivered as a "new document" card.
func TestEndToEnd_InjectThenGreeting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.o.Inject(ctx, InjectRequest{Input: docstore.Input{Title: "Spec v2", LocalPath: "docs/spec.txt"}})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	doc := res.Document
	if doc.ID != "DOC-001" || doc.State != models.StatePendingApproval {
		t.Fatalf("document = %+v", doc)
	}
	if h.queue.Len() != 1 {
		t.Fatalf("queue len = %d", h.queue.Len())
	}

	ev := InboundEvent{Platform: "test", ConversationID: "C-ANY", SenderIdentity: "someone", Text: "hello"}
	h.o.Handle(ctx, ev)

	sent := h.gw.AllSent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d, want summary + new document", len(sent))
	}
	if !strings.Contains(sent[0].Msg.Card.Body, "DOC-001 · Spec v2") {
		t.Errorf("summary body = %q", sent[0].Msg.Card.Body)
	}
	card := sent[1].Msg.Card
	if card.Title != "New document for approval" || !strings.Contains(card.Body, "Spec v2") {
		t.Errorf("new document card = %+v", card)
	}
	if sent[1].ConversationID != "C-ANY" {
		t.Errorf("delivered to %q", sent[1].ConversationID)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue len = %d after drain", h.queue.Len())
	}

	other := InboundEvent{Platform: "test", ConversationID: "C-OTHER", SenderIdentity: "someone-else", Text: "hello"}
	h.o.Handle(ctx, other)
	for _, m := range h.gw.AllSent()[2:] {
		if cardTitle(m) == "New document for approval" {
			t.Error("notification delivered twice")
		}
	}
}
