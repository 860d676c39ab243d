package telegraph

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/directory"
	"github.com/zulandar/signoff/internal/docstore"
	"go.uber.org/zap"
)

// Daemon is the main telegraph process. It connects to a chat platform via
// a Gateway, pumps inbound events to the Orchestrator, and sends the
// pending-approvals reminder on schedule.
type Daemon struct {
	gateway      Gateway
	orchestrator *Orchestrator
	store        *docstore.Store
	dir          *directory.Directory
	reminders    config.RemindersConfig
	log          *zap.Logger
	out          io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Gateway      Gateway
	Orchestrator *Orchestrator
	Store        *docstore.Store
	Directory    *directory.Directory
	Reminders    config.RemindersConfig
	Logger       *zap.Logger
	Out          io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("telegraph: gateway is required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("telegraph: orchestrator is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("telegraph: document store is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("telegraph: directory is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		gateway:      opts.Gateway,
		orchestrator: opts.Orchestrator,
		store:        opts.Store,
		dir:          opts.Directory,
		reminders:    opts.Reminders,
		log:          log,
		out:          out,
	}, nil
}

// Run connects the gateway and blocks until the context is cancelled or
// the gateway closes its inbound channel. Events are handled one at a
// time. On shutdown it closes the gateway and waits for background
// lookups to finish.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	inbound, err := d.gateway.Listen(ctx)
	if err != nil {
		d.gateway.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	go d.logResolved(ctx)
	go d.runReminderScheduler(ctx)

	fmt.Fprintf(d.out, "Telegraph online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			if err := d.gateway.Close(); err != nil {
				d.log.Warn("telegraph: close gateway", zap.Error(err))
			}
			d.orchestrator.Wait()
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case ev, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				d.orchestrator.Wait()
				return nil
			}
			d.orchestrator.Handle(ctx, ev)
		}
	}
}

// logResolved reports background email lookups.
func (d *Daemon) logResolved(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.orchestrator.Resolved():
			if r.Err != nil {
				continue
			}
			d.log.Info("telegraph: identity resolved",
				zap.String("identity", r.Identity),
				zap.String("email", r.Email),
				zap.String("conversation", r.ConversationID))
		}
	}
}

// runReminderScheduler fires the pending-approvals reminder on the
// configured cron schedule. It returns immediately if reminders are off.
func (d *Daemon) runReminderScheduler(ctx context.Context) {
	if !d.reminders.Enabled || d.reminders.Cron == "" {
		return
	}

	schedule, err := cron.ParseStandard(d.reminders.Cron)
	if err != nil {
		d.log.Warn("telegraph: reminders disabled, bad cron", zap.String("cron", d.reminders.Cron), zap.Error(err))
		return
	}
	wait, ok := nextReminder(schedule, time.Now())
	if !ok {
		d.log.Warn("telegraph: reminders disabled, cron never fires", zap.String("cron", d.reminders.Cron))
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.sendReminders(ctx)
			wait, ok := nextReminder(schedule, time.Now())
			if !ok {
				d.log.Warn("telegraph: reminders stopped, cron never fires again", zap.String("cron", d.reminders.Cron))
				return
			}
			timer.Reset(wait)
		}
	}
}

// nextReminder returns how long to wait from now until the schedule next
// fires. The wait is at least one second so a fire that lands on the
// current instant is not repeated. ok is false when the schedule has no
// future fire time.
func nextReminder(schedule cron.Schedule, now time.Time) (wait time.Duration, ok bool) {
	next := schedule.Next(now)
	if next.IsZero() {
		return 0, false
	}
	wait = next.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait, true
}

// sendReminders posts the reminder card to every known conversation.
// Nothing is sent when no document is pending. It returns the number of
// conversations reached.
func (d *Daemon) sendReminders(ctx context.Context) int {
	pending := d.store.ListPending()
	if len(pending) == 0 {
		return 0
	}
	card := ReminderCard(pending)
	sent := 0
	for _, ref := range d.dir.All() {
		if _, err := d.gateway.Send(ctx, ref.ConversationID, card); err != nil {
			d.log.Warn("telegraph: send reminder", zap.String("conversation", ref.ConversationID), zap.Error(err))
			continue
		}
		sent++
	}
	fmt.Fprintf(d.out, "Telegraph reminder: %d pending, %d conversation(s)\n", len(pending), sent)
	return sent
}
