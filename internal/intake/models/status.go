package models

import (
	"fmt"
	"strings"

	dErrors "ppdb/pkg/domain-errors"
)

// Status is the wire-stable lifecycle state of an application.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRegistered Status = "registered"
	StatusSelection  Status = "selection"
	StatusAnnounced  Status = "announced"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRegistered, StatusSelection, StatusAnnounced,
		StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Event names a staff- or system-driven transition. The machine never
// auto-advances; every transition is an explicit external call.
type Event string

const (
	EventRegister       Event = "register"
	EventBeginSelection Event = "begin_selection"
	EventAnnounce       Event = "announce"
	EventAccept         Event = "accept"
	EventReject         Event = "reject"
	EventCancel         Event = "cancel"
)

// ParseEvent validates an event name from the wire.
func ParseEvent(s string) (Event, error) {
	e := Event(s)
	if _, ok := allowedSources[e]; !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown transition event %q", s)
	}
	return e, nil
}

// allowedSources is the transition table: each event lists the statuses it
// may legally fire from. Cancelled is reachable from every non-terminal
// state; accepted and rejected are only reachable through announced.
var allowedSources = map[Event][]Status{
	EventRegister:       {StatusPending},
	EventBeginSelection: {StatusRegistered},
	EventAnnounce:       {StatusSelection},
	EventAccept:         {StatusAnnounced},
	EventReject:         {StatusAnnounced},
	EventCancel:         {StatusPending, StatusRegistered, StatusSelection, StatusAnnounced},
}

// AllowedSources returns the legal source statuses for an event.
func AllowedSources(e Event) []Status {
	sources := allowedSources[e]
	out := make([]Status, len(sources))
	copy(out, sources)
	return out
}

// invalidTransition names the current state, the requested event, and the
// allowed source states in the error message.
func invalidTransition(current Status, event Event) error {
	sources := allowedSources[event]
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return dErrors.New(dErrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s from %s (allowed from: %s)", event, current, strings.Join(names, ", ")))
}

// DocumentStatus tracks verification of one document slot, independent of
// the application status.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentValid   DocumentStatus = "valid"
	// DocumentRevisi means the document needs revision and re-upload.
	DocumentRevisi DocumentStatus = "revisi"
)

// Valid reports whether d is a known document status.
func (d DocumentStatus) Valid() bool {
	return d == DocumentPending || d == DocumentValid || d == DocumentRevisi
}

// ScoreKind names one of the three sub-score components.
type ScoreKind string

const (
	ScoreSelection ScoreKind = "selection"
	ScoreInterview ScoreKind = "interview"
	ScoreDocument  ScoreKind = "document"
)

// Valid reports whether k is a known score kind.
func (k ScoreKind) Valid() bool {
	return k == ScoreSelection || k == ScoreInterview || k == ScoreDocument
}
