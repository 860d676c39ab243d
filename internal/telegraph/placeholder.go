package telegraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/signoff/internal/metrics"
	"go.uber.org/zap"
)

// work produces the final message shown in place of a loading placeholder.
type work func(ctx context.Context) (OutboundMessage, error)

// runWithPlaceholder shows loading while fn runs, then replaces it with the
// result. The typing indicator runs for the whole call. Errors and panics
// in fn become the generic error card.
func (o *Orchestrator) runWithPlaceholder(ctx context.Context, ev InboundEvent, loading OutboundMessage, fn work) {
	stop := o.startTyping(ctx, ev.ConversationID)
	defer stop()

	placeholder := o.showPlaceholder(ctx, ev, loading)
	final := o.runWork(ctx, fn)
	stop()
	o.replacePlaceholder(ctx, ev.ConversationID, placeholder, final)
}

// startTyping sends a typing signal now and every interval until the
// returned func is called. The func is idempotent and waits for the
// ticker goroutine to exit.
func (o *Orchestrator) startTyping(ctx context.Context, conversationID string) func() {
	typer, ok := o.gateway.(Typer)
	if !ok || o.typingInterval < 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(o.typingInterval)
		defer ticker.Stop()

		o.typing(ctx, typer, conversationID)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.typing(ctx, typer, conversationID)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

func (o *Orchestrator) typing(ctx context.Context, typer Typer, conversationID string) {
	if err := typer.Typing(ctx, conversationID); err != nil {
		o.log.Debug("telegraph: typing", zap.String("conversation", conversationID), zap.Error(err))
	}
}

// showPlaceholder turns the triggering card into the loading card, or
// deletes it and sends a fresh one. It returns the placeholder's message
// id, or "" when nothing could be shown.
func (o *Orchestrator) showPlaceholder(ctx context.Context, ev InboundEvent, loading OutboundMessage) string {
	if ev.ReplyToMessageID != "" {
		err := o.gateway.Update(ctx, ev.ConversationID, ev.ReplyToMessageID, loading)
		if err == nil {
			return ev.ReplyToMessageID
		}
		o.log.Debug("telegraph: placeholder: update failed, sending new",
			zap.String("message", ev.ReplyToMessageID), zap.Error(err))
		if err := o.gateway.Delete(ctx, ev.ConversationID, ev.ReplyToMessageID); err != nil {
			o.log.Debug("telegraph: placeholder: delete trigger", zap.Error(err))
		}
	}
	id, err := o.gateway.Send(ctx, ev.ConversationID, loading)
	if err != nil {
		o.log.Warn("telegraph: placeholder: send", zap.String("conversation", ev.ConversationID), zap.Error(err))
		return ""
	}
	return id
}

// runWork calls fn, converting an error or panic into the error card.
func (o *Orchestrator) runWork(ctx context.Context, fn work) (msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("telegraph: work panicked", zap.String("panic", fmt.Sprint(r)))
			msg = ErrorCard()
		}
	}()
	out, err := fn(ctx)
	if err != nil {
		o.log.Error("telegraph: work failed", zap.Error(err))
		return ErrorCard()
	}
	return out
}

// replacePlaceholder shows final: in place when possible, otherwise as a
// new message followed by a best-effort delete of the placeholder.
func (o *Orchestrator) replacePlaceholder(ctx context.Context, conversationID, placeholder string, final OutboundMessage) {
	if placeholder != "" {
		err := o.gateway.Update(ctx, conversationID, placeholder, final)
		if err == nil {
			metrics.PlaceholderFallbacks.WithLabelValues(metrics.TierUpdate).Inc()
			return
		}
		o.log.Debug("telegraph: placeholder: final update failed", zap.String("message", placeholder), zap.Error(err))
	}

	if _, err := o.gateway.Send(ctx, conversationID, final); err != nil {
		o.log.Error("telegraph: placeholder: send final", zap.String("conversation", conversationID), zap.Error(err))
		return
	}
	if placeholder == "" {
		metrics.PlaceholderFallbacks.WithLabelValues(metrics.TierSendOnly).Inc()
		return
	}
	metrics.PlaceholderFallbacks.WithLabelValues(metrics.TierSendDelete).Inc()
	if err := o.gateway.Delete(ctx, conversationID, placeholder); err != nil {
		o.log.Debug("telegraph: placeholder: delete stale", zap.String("message", placeholder), zap.Error(err))
	}
}
