// Package donations holds blood donation records.
package donations

import (
	"fmt"
	"strings"
	"time"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/shared"
)

// Collection holds active donations.
const Collection = "donations"

// Audit action codes.
const (
	ActionCreate       = "DONATION_CREATE"
	ActionStatusUpdate = "DONATION_STATUS_UPDATE"
)

// Status is the review state of a donation.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus validates raw.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusRejected:
		return s, nil
	default:
		return "", fmt.Errorf("donations: unknown status %q: %w", raw, shared.ErrValidation)
	}
}

// Donation records one donation by a donor.
type Donation struct {
	ID         string    `json:"id"`
	DonorID    string    `json:"donorId"`
	DonorName  string    `json:"donorName"`
	BloodGroup string    `json:"bloodGroup"`
	Units      int       `json:"units"`
	Location   string    `json:"location,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	ReviewedBy string    `json:"reviewedBy,omitempty"`
}

// Document renders d in its persisted shape.
func (d Donation) Document() (docstore.Document, error) {
	doc, err := docstore.Encode(d)
	if err != nil {
		return nil, fmt.Errorf("donations: encode %s: %w", d.ID, err)
	}
	return doc, nil
}

// FromRecord decodes a stored donation.
func FromRecord(rec docstore.Record) (Donation, error) {
	var d Donation
	if err := docstore.Decode(rec.Data, &d); err != nil {
		return Donation{}, fmt.Errorf("donations: decode %s: %w", rec.ID, err)
	}
	d.ID = rec.ID
	return d, nil
}
