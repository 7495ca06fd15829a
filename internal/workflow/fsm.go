// Package workflow drives finalizing one order: reserve it, load what the form
// needs, require the Bling lookup, collect packages and submit in two steps.
package workflow

import (
	"fmt"
)

type State int

const (
	Closed State = iota
	Reserving
	Reserved
	DetailsLoaded
	ExternalInfoPending
	ReadyToSubmit
	Submitting
)

var stateNames = [...]string{
	Closed:              "closed",
	Reserving:           "reserving",
	Reserved:            "reserved",
	DetailsLoaded:       "details_loaded",
	ExternalInfoPending: "external_info_pending",
	ReadyToSubmit:       "ready_to_submit",
	Submitting:          "submitting",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Event int

const (
	EvOpen Event = iota
	// EvReserveDone fires whether or not the reservation was granted.
	EvReserveDone
	EvLoaded
	EvLoadFailed
	EvFetchExternal
	EvExternalFetched
	EvExternalFailed
	EvSubmit
	EvSubmitted
	EvSubmitFailed
	EvCancel
)

var eventNames = [...]string{
	EvOpen:            "open",
	EvReserveDone:     "reserve_done",
	EvLoaded:          "loaded",
	EvLoadFailed:      "load_failed",
	EvFetchExternal:   "fetch_external",
	EvExternalFetched: "external_fetched",
	EvExternalFailed:  "external_failed",
	EvSubmit:          "submit",
	EvSubmitted:       "submitted",
	EvSubmitFailed:    "submit_failed",
	EvCancel:          "cancel",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Transition is one edge of the machine. Guard, when set, must hold for the edge
// to be taken; edges are tried in table order.
type Transition struct {
	From  State
	Event Event
	To    State
	Guard func(*Draft) bool
}

func externalDone(d *Draft) bool    { return d != nil && d.ExternalInfoFetched }
func externalMissing(d *Draft) bool { return !externalDone(d) }

var table = []Transition{
	{From: Closed, Event: EvOpen, To: Reserving},
	{From: Reserving, Event: EvReserveDone, To: Reserved},
	{From: Reserving, Event: EvCancel, To: Closed},

	{From: Reserved, Event: EvLoaded, To: DetailsLoaded},
	{From: Reserved, Event: EvLoadFailed, To: Reserved},
	{From: Reserved, Event: EvCancel, To: Closed},

	{From: DetailsLoaded, Event: EvFetchExternal, To: ExternalInfoPending},
	{From: DetailsLoaded, Event: EvCancel, To: Closed},

	{From: ExternalInfoPending, Event: EvExternalFetched, To: ReadyToSubmit},
	{From: ExternalInfoPending, Event: EvExternalFailed, To: ReadyToSubmit, Guard: externalDone},
	{From: ExternalInfoPending, Event: EvExternalFailed, To: DetailsLoaded, Guard: externalMissing},
	{From: ExternalInfoPending, Event: EvCancel, To: Closed},

	{From: ReadyToSubmit, Event: EvFetchExternal, To: ExternalInfoPending},
	{From: ReadyToSubmit, Event: EvSubmit, To: Submitting},
	{From: ReadyToSubmit, Event: EvCancel, To: Closed},

	{From: Submitting, Event: EvSubmitted, To: Closed},
	{From: Submitting, Event: EvSubmitFailed, To: ReadyToSubmit},
}

// InvalidTransitionError reports an event the current state does not accept.
type InvalidTransitionError struct {
	State State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workflow: %s not allowed in %s", e.Event, e.State)
}

// Machine holds the current state. It is not synchronized; Workflow guards it.
type Machine struct {
	state State
}

func (m *Machine) State() State { return m.state }

// Fire applies ev and returns the edge taken.
func (m *Machine) Fire(ev Event, d *Draft) (Transition, error) {
	for _, t := range table {
		if t.From != m.state || t.Event != ev {
			continue
		}
		if t.Guard != nil && !t.Guard(d) {
			continue
		}
		m.state = t.To
		return t, nil
	}
	return Transition{}, &InvalidTransitionError{State: m.state, Event: ev}
}

// Can reports whether ev would be accepted now.
func (m *Machine) Can(ev Event, d *Draft) bool {
	for _, t := range table {
		if t.From == m.state && t.Event == ev && (t.Guard == nil || t.Guard(d)) {
			return true
		}
	}
	return false
}
