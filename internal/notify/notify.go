// Package notify emails interview invitations to shortlisted candidates.
package notify

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/report"
	"github.com/spigell/cv-matcher/internal/store"
	"github.com/spigell/cv-matcher/internal/utils"
)

// ErrMissingRecipient is returned for shortlist rows without an email address.
var ErrMissingRecipient = errors.New("recipient email address is missing")

var DefaultSlots = []string{
	"Monday, 10:00 AM",
	"Tuesday, 2:00 PM",
	"Wednesday, 11:30 AM",
	"Thursday, 4:00 PM",
	"Friday, 1:00 PM",
}

const (
	DefaultMeeting  = "Google Meet"
	DefaultDuration = "45 minutes"
)

//go:embed templates/invitation.html
var invitationHTML string

var invitationTemplate = template.Must(template.New("invitation").Parse(invitationHTML))

type Config struct {
	Slots    []string
	Meeting  string
	Duration string
	// Interval is the pause between two sends.
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Slots) == 0 {
		c.Slots = DefaultSlots
	}
	if c.Meeting == "" {
		c.Meeting = DefaultMeeting
	}
	if c.Duration == "" {
		c.Duration = DefaultDuration
	}
	return c
}

// Store is the persistence Notifier reads and updates.
type Store interface {
	PendingInvitations(ctx context.Context) ([]store.Invitation, error)
	MarkInvitationSent(ctx context.Context, entryID uint) error
}

type Notifier struct {
	store  Store
	mailer Mailer
	cfg    Config
	logger *zap.Logger
	pick   func(n int) int
}

func New(store Store, mailer Mailer, cfg Config, log *zap.Logger) *Notifier {
	return &Notifier{
		store:  store,
		mailer: mailer,
		cfg:    cfg.withDefaults(),
		logger: logger.OrNop(log),
		pick:   rand.IntN,
	}
}

// Compose renders the invitation for one shortlist row.
func (n *Notifier) Compose(inv store.Invitation, slot string) (Message, error) {
	var body bytes.Buffer
	err := invitationTemplate.Execute(&body, struct {
		Name, JobTitle, Slot, Meeting, Duration string
	}{inv.Name, inv.JobTitle, slot, n.cfg.Meeting, n.cfg.Duration})
	if err != nil {
		return Message{}, fmt.Errorf("render invitation: %w", err)
	}

	return Message{
		To:      strings.TrimSpace(inv.Email),
		Subject: "Interview Invitation for " + inv.JobTitle,
		HTML:    body.String(),
	}, nil
}

// Run emails every shortlist row not yet notified. A row is marked as sent
// right after its email is accepted. Delivery failures are reported per row
// and do not stop the loop; storage errors do.
func (n *Notifier) Run(ctx context.Context) ([]report.Item, error) {
	pending, err := n.store.PendingInvitations(ctx)
	if err != nil {
		return nil, err
	}

	if len(pending) == 0 {
		n.logger.Info("all shortlisted candidates have already received interview emails")
		return nil, nil
	}

	items := make([]report.Item, 0, len(pending))
	for i, inv := range pending {
		if i > 0 {
			if err := utils.WaitFor(ctx, n.cfg.Interval); err != nil {
				return items, err
			}
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}

		id := fmt.Sprintf("shortlist %d", inv.EntryID)
		log := n.logger.With(append(logger.CandidateFields(inv.CandidateID, inv.Email), logger.JobField(inv.JobID))...)

		if err := n.send(ctx, inv); err != nil {
			log.Error("failed to send interview email", zap.String("name", inv.Name), zap.Error(err))
			items = append(items, report.Failed(id, err))
			continue
		}

		if err := n.store.MarkInvitationSent(ctx, inv.EntryID); err != nil {
			return items, err
		}

		log.Info("interview email sent", zap.String("job_title", inv.JobTitle))
		items = append(items, report.OK(id))
	}

	return items, nil
}

func (n *Notifier) send(ctx context.Context, inv store.Invitation) error {
	if strings.TrimSpace(inv.Email) == "" {
		return fmt.Errorf("shortlist entry %d: %w", inv.EntryID, ErrMissingRecipient)
	}

	slot := n.cfg.Slots[n.pick(len(n.cfg.Slots))]

	msg, err := n.Compose(inv, slot)
	if err != nil {
		return err
	}

	return n.mailer.Send(ctx, msg)
}
