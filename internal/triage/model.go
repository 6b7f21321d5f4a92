package triage

import "time"

// Decision is a reviewer's verdict on a flag or on a whole record.
type Decision string

const (
	// DecisionAccepted means the reviewer accepted the flag or record.
	DecisionAccepted Decision = "accepted"

	// DecisionRejected means the reviewer rejected the flag or record.
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is one of the known decision values.
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Vitals is a raw measurement capture. All fields are free-text as entered
// at the front desk; absent or unparseable values yield no flags rather
// than errors.
type Vitals struct {
	Height    string `json:"height,omitempty"`     // cm
	Weight    string `json:"weight,omitempty"`     // kg
	HeartRate string `json:"heart_rate,omitempty"` // bpm
	Pressure  string `json:"pressure,omitempty"`   // "systolic/diastolic" mmHg
}

// Subject identifies who the vitals were captured for.
type Subject struct {
	Name       string `json:"name"`
	PhotoRef   string `json:"photo_ref,omitempty"`
	CardNumber string `json:"card_number"`
	NationalID string `json:"national_id,omitempty"`
}

// Invoice is billing data attached by an external collaborator. The store
// round-trips it untouched; nothing in this package interprets it.
type Invoice struct {
	Amount float64  `json:"amount"`
	Status string   `json:"status"`
	Flags  []string `json:"flags,omitempty"`
}

// DecisionEvent is one entry in a record's append-only review history.
type DecisionEvent struct {
	At       time.Time `json:"at"`
	Flag     Flag      `json:"flag,omitempty"` // empty for whole-record decisions
	Decision Decision  `json:"decision"`
}

// Record is the durable unit representing one captured vitals event for
// one subject. Flags are derived from Vitals on every read and are never
// stored.
type Record struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Subject       Subject           `json:"subject"`
	Vitals        Vitals            `json:"vitals"`
	Sent          bool              `json:"sent"`
	FlagDecisions map[Flag]Decision `json:"flag_decisions,omitempty"`

	// ManagerDecision is the overall verdict for the record. It may be
	// overwritten by a later review session; DecisionLog keeps the trail.
	ManagerDecision Decision        `json:"manager_decision,omitempty"`
	DecisionLog     []DecisionEvent `json:"decision_log,omitempty"`

	Invoice *Invoice `json:"invoice,omitempty"`
}

// Clone returns a deep copy of the record so store implementations can
// hand out values without sharing mutable state.
func (r *Record) Clone() *Record {
	cp := *r
	if r.FlagDecisions != nil {
		cp.FlagDecisions = make(map[Flag]Decision, len(r.FlagDecisions))
		for k, v := range r.FlagDecisions {
			cp.FlagDecisions[k] = v
		}
	}
	if r.DecisionLog != nil {
		cp.DecisionLog = append([]DecisionEvent(nil), r.DecisionLog...)
	}
	if r.Invoice != nil {
		inv := *r.Invoice
		inv.Flags = append([]string(nil), r.Invoice.Flags...)
		cp.Invoice = &inv
	}
	return &cp
}
