package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// EventType is the fixed enumeration of tradeable occurrence kinds.
type EventType string

const (
	EventListing     EventType = "listing"
	EventDelisting   EventType = "delisting"
	EventBurn        EventType = "burn"
	EventUnlock      EventType = "unlock"
	EventFork        EventType = "fork"
	EventLaunch      EventType = "launch"
	EventPartnership EventType = "partnership"
	EventAirdrop     EventType = "airdrop"
	EventGovernance  EventType = "governance"
	EventFunding     EventType = "funding"
	EventOther       EventType = "other"
)

// ValidEventTypes is the accepted set for intake validation.
var ValidEventTypes = map[EventType]bool{
	EventListing: true, EventDelisting: true, EventBurn: true,
	EventUnlock: true, EventFork: true, EventLaunch: true,
	EventPartnership: true, EventAirdrop: true, EventGovernance: true,
	EventFunding: true, EventOther: true,
}

// Importance tiers weight an event's contribution to the token signal.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// SourceGen discriminates legacy integer-keyed rows from current
// content-hash-keyed ones. Legacy rows are migrated by re-deriving the
// hash id; both generations live in one table.
type SourceGen string

const (
	SourceGenLegacy  SourceGen = "v1"
	SourceGenCurrent SourceGen = "v2"
)

// Event is a candidate tradeable occurrence discovered by the external
// collector. The core only flips OutcomesGenerated; it never deletes.
type Event struct {
	ID                string     `json:"id"`
	Symbol            string     `json:"symbol"`
	Title             string     `json:"title"`
	Type              EventType  `json:"type"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty"`
	Importance        Importance `json:"importance"`
	SourceName        string     `json:"source_name,omitempty"`
	SourceURL         string     `json:"source_url,omitempty"`
	SourceGen         SourceGen  `json:"source_gen"`
	OutcomesGenerated bool       `json:"outcomes_generated"`
	CreatedAt         time.Time  `json:"created_at"`
}

// EventID derives the stable content-hash identifier for an event.
// Same symbol+type+title always map to the same id, which is what makes
// exact-duplicate intake idempotent.
func EventID(symbol string, typ EventType, title string) string {
	raw := strings.ToLower(symbol) + string(typ) + strings.TrimSpace(strings.ToLower(title))
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ImportanceWeight maps a tier to its aggregation weight.
func ImportanceWeight(imp Importance) float64 {
	switch imp {
	case ImportanceHigh:
		return 1.0
	case ImportanceLow:
		return 0.5
	default:
		return 0.75
	}
}
