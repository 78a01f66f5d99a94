package access

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/donations"
	"github.com/donorhub/donorhub/internal/users"
)

// ItemKind distinguishes pending queue entries.
type ItemKind string

const (
	ItemAccess   ItemKind = "access"
	ItemDonation ItemKind = "donation"
)

// PendingItem is one outstanding access request or pending donation.
type PendingItem struct {
	ID         string     `json:"id"`
	Kind       ItemKind   `json:"kind"`
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	Capability Capability `json:"capability,omitempty"`
	DonationID string     `json:"donationId,omitempty"`
	BloodGroup string     `json:"bloodGroup,omitempty"`
	Units      int        `json:"units,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UserLister lists users by field filters.
type UserLister interface {
	List(ctx context.Context, filters ...docstore.Filter) ([]users.User, error)
}

// DonationLister lists donations by status.
type DonationLister interface {
	ListByStatus(ctx context.Context, status donations.Status) ([]donations.Donation, error)
}

// Subscriber opens live subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string) (*docstore.Subscription, error)
}

// Queue computes the pending queue from source records on every read.
type Queue struct {
	users     UserLister
	donations DonationLister
	feed      Subscriber
	logger    *slog.Logger
}

// NewQueue constructs a Queue.
func NewQueue(users UserLister, donations DonationLister, feed Subscriber, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{users: users, donations: donations, feed: feed, logger: logger.With(slog.String("component", "access_queue"))}
}

// Pending returns every requested capability and every pending donation,
// newest first with ties broken by id. A failing sub-query contributes
// nothing.
func (q *Queue) Pending(ctx context.Context) []PendingItem {
	parts := make([][]PendingItem, len(capabilityOrder)+1)
	var g errgroup.Group
	for i, c := range capabilityOrder {
		g.Go(func() error {
			rows, err := q.users.List(ctx, docstore.Filter{Field: c.RequestedField(), Value: true})
			if err != nil {
				q.logger.Warn("pending access query", slog.String("capability", string(c)), slog.Any("error", err))
				return nil
			}
			items := make([]PendingItem, 0, len(rows))
			for _, u := range rows {
				items = append(items, accessItem(u, c))
			}
			parts[i] = items
			return nil
		})
	}
	g.Go(func() error {
		rows, err := q.donations.ListByStatus(ctx, donations.StatusPending)
		if err != nil {
			q.logger.Warn("pending donation query", slog.Any("error", err))
			return nil
		}
		items := make([]PendingItem, 0, len(rows))
		for _, d := range rows {
			items = append(items, donationItem(d))
		}
		parts[len(capabilityOrder)] = items
		return nil
	})
	_ = g.Wait()

	var out []PendingItem
	for _, part := range parts {
		out = append(out, part...)
	}
	sortPending(out)
	if out == nil {
		out = []PendingItem{}
	}
	return out
}

// Watch calls fn with the pending queue now and after every change to users
// or donations until ctx ends. Both subscriptions are closed on return.
func (q *Queue) Watch(ctx context.Context, fn func([]PendingItem)) error {
	userSub, err := q.feed.Subscribe(ctx, users.Collection)
	if err != nil {
		return err
	}
	defer userSub.Close()
	donationSub, err := q.feed.Subscribe(ctx, donations.Collection)
	if err != nil {
		return err
	}
	defer donationSub.Close()

	fn(q.Pending(ctx))
	userChanges, donationChanges := userSub.Changes(), donationSub.Changes()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-userChanges:
			if !ok {
				return nil
			}
		case _, ok := <-donationChanges:
			if !ok {
				return nil
			}
		}
		fn(q.Pending(ctx))
	}
}

func accessItem(u users.User, c Capability) PendingItem {
	ts := u.UpdatedAt
	if at := c.StateOf(u).RequestedAt; at != nil {
		ts = *at
	}
	return PendingItem{
		ID:         u.ID + ":" + string(c),
		Kind:       ItemAccess,
		UserID:     u.ID,
		UserName:   u.DisplayName(),
		Capability: c,
		Timestamp:  ts,
	}
}

func donationItem(d donations.Donation) PendingItem {
	return PendingItem{
		ID:         "donation:" + d.ID,
		Kind:       ItemDonation,
		UserID:     d.DonorID,
		UserName:   d.DonorName,
		DonationID: d.ID,
		BloodGroup: d.BloodGroup,
		Units:      d.Units,
		Timestamp:  d.CreatedAt,
	}
}

func sortPending(items []PendingItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID > items[j].ID
	})
}
