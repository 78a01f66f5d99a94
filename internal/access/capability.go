// Package access drives the request and decision workflow for the gated
// capabilities of a user.
package access

import (
	"fmt"
	"strings"
	"time"

	"github.com/donorhub/donorhub/internal/shared"
	"github.com/donorhub/donorhub/internal/users"
)

// ErrUnknownCapability rejects a capability outside the closed set.
var ErrUnknownCapability = fmt.Errorf("access: unknown capability: %w", shared.ErrValidation)

// Capability is an independently gated feature.
type Capability string

const (
	CapabilityDirectory Capability = "directory"
	CapabilitySupport   Capability = "support"
	CapabilityFeedback  Capability = "feedback"
	CapabilityIDCard    Capability = "idcard"
)

type capabilityMeta struct {
	access    string
	requested string
	label     string
	code      string
}

var capabilities = map[Capability]capabilityMeta{
	CapabilityDirectory: {access: "hasDirectoryAccess", requested: "directoryAccessRequested", label: "directory", code: "DIRECTORY"},
	CapabilitySupport:   {access: "hasSupportAccess", requested: "supportAccessRequested", label: "support", code: "SUPPORT"},
	CapabilityFeedback:  {access: "hasFeedbackAccess", requested: "feedbackAccessRequested", label: "feedback", code: "FEEDBACK"},
	CapabilityIDCard:    {access: "hasIDCardAccess", requested: "idCardAccessRequested", label: "ID card", code: "IDCARD"},
}

var capabilityOrder = []Capability{CapabilityDirectory, CapabilitySupport, CapabilityFeedback, CapabilityIDCard}

// Capabilities lists every capability.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilityOrder))
	copy(out, capabilityOrder)
	return out
}

// ParseCapability validates raw.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := capabilities[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, raw)
	}
	return c, nil
}

// AccessField is the user field holding the grant.
func (c Capability) AccessField() string { return capabilities[c].access }

// RequestedField is the user field holding the pending bit.
func (c Capability) RequestedField() string { return capabilities[c].requested }

// RequestedAtField is the user field holding the request timestamp.
func (c Capability) RequestedAtField() string { return capabilities[c].requested + "At" }

// UpdateAction is the audit code for decisions and revocations.
func (c Capability) UpdateAction() string { return capabilities[c].code + "_ACCESS_UPDATE" }

// RequestAction is the audit code for requests.
func (c Capability) RequestAction() string { return capabilities[c].code + "_ACCESS_REQUEST" }

// Label is the human readable name.
func (c Capability) Label() string { return capabilities[c].label }

// State is the per-user state of one capability.
type State struct {
	Access      bool       `json:"access"`
	Requested   bool       `json:"requested"`
	RequestedAt *time.Time `json:"requestedAt,omitempty"`
}

// StateOf reads the capability state from u.
func (c Capability) StateOf(u users.User) State {
	switch c {
	case CapabilityDirectory:
		return State{Access: u.HasDirectoryAccess, Requested: u.DirectoryAccessRequested, RequestedAt: u.DirectoryAccessRequestedAt}
	case CapabilitySupport:
		return State{Access: u.HasSupportAccess, Requested: u.SupportAccessRequested, RequestedAt: u.SupportAccessRequestedAt}
	case CapabilityFeedback:
		return State{Access: u.HasFeedbackAccess, Requested: u.FeedbackAccessRequested, RequestedAt: u.FeedbackAccessRequestedAt}
	case CapabilityIDCard:
		return State{Access: u.HasIDCardAccess, Requested: u.IDCardAccessRequested, RequestedAt: u.IDCardAccessRequestedAt}
	default:
		return State{}
	}
}
