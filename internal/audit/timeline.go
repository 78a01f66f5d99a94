package audit

import (
	"time"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/shared"
)

// Collection holds the active audit journal.
const Collection = "logs"

// Entry is one immutable audit record.
type Entry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	Details    string    `json:"details"`
	Timestamp  time.Time `json:"timestamp"`
}

// Document renders the entry in its persisted shape.
func (e Entry) Document() docstore.Document {
	return docstore.Document{
		"action":     e.Action,
		"userId":     e.UserID,
		"userName":   e.UserName,
		"userAvatar": e.UserAvatar,
		"details":    e.Details,
		"timestamp":  shared.FormatTimestamp(e.Timestamp),
	}
}

// EntryFromRecord reads a persisted entry. Missing fields stay empty.
func EntryFromRecord(rec docstore.Record) Entry {
	str := func(key string) string {
		v, _ := rec.Data[key].(string)
		return v
	}
	return Entry{
		ID:         rec.ID,
		Action:     str("action"),
		UserID:     str("userId"),
		UserName:   str("userName"),
		UserAvatar: str("userAvatar"),
		Details:    str("details"),
		Timestamp:  shared.ParseTimestamp(str("timestamp")),
	}
}

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps one timeline page.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
