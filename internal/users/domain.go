package users

import (
	"fmt"
	"time"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
)

// Collection holds active user records.
const Collection = "users"

// Audit action codes.
const (
	ActionRegister   = "USER_REGISTER"
	ActionRoleUpdate = "USER_ROLE_UPDATE"
	ActionSuspend    = "USER_SUSPEND"
	ActionUnsuspend  = "USER_UNSUSPEND"
)

// User is the identity record. It is stored as one document keyed by ID.
type User struct {
	ID         string           `json:"id"`
	Role       permissions.Role `json:"role"`
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	Avatar     string           `json:"avatar,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	BloodGroup string           `json:"bloodGroup,omitempty"`

	HasDirectoryAccess bool `json:"hasDirectoryAccess"`
	HasSupportAccess   bool `json:"hasSupportAccess"`
	HasFeedbackAccess  bool `json:"hasFeedbackAccess"`
	HasIDCardAccess    bool `json:"hasIDCardAccess"`

	DirectoryAccessRequested bool `json:"directoryAccessRequested"`
	SupportAccessRequested   bool `json:"supportAccessRequested"`
	FeedbackAccessRequested  bool `json:"feedbackAccessRequested"`
	IDCardAccessRequested    bool `json:"idCardAccessRequested"`

	DirectoryAccessRequestedAt *time.Time `json:"directoryAccessRequestedAt,omitempty"`
	SupportAccessRequestedAt   *time.Time `json:"supportAccessRequestedAt,omitempty"`
	FeedbackAccessRequestedAt  *time.Time `json:"feedbackAccessRequestedAt,omitempty"`
	IDCardAccessRequestedAt    *time.Time `json:"idCardAccessRequestedAt,omitempty"`

	IsSuspended bool                   `json:"isSuspended"`
	Permissions *permissions.Overrides `json:"permissions,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// Subject projects the user for permission resolution.
func (u User) Subject() permissions.Subject {
	subject := permissions.Subject{ID: u.ID, Role: u.Role, Email: u.Email, Suspended: u.IsSuspended}
	if u.Permissions != nil {
		subject.Overrides = u.Permissions.Sanitize()
	}
	return subject
}

// DisplayName falls back to the email when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Document renders the user in its persisted shape.
func (u User) Document() (docstore.Document, error) {
	doc, err := docstore.Encode(u)
	if err != nil {
		return nil, fmt.Errorf("users: encode %s: %w", u.ID, err)
	}
	return doc, nil
}

// FromRecord decodes a stored user. Unknown fields, such as archive markers,
// are ignored.
func FromRecord(rec docstore.Record) (User, error) {
	var u User
	if err := docstore.Decode(rec.Data, &u); err != nil {
		return User{}, fmt.Errorf("users: decode %s: %w", rec.ID, err)
	}
	u.ID = rec.ID
	return u, nil
}
