// Package ledger reads and mutates Privnode's per-user subscription
// ledger: a JSON array of quota entries stored in one column of the
// external users table. Entry transforms are pure; all storage access
// goes through Store under a row lock.
package ledger

import (
	"encoding/json"
	"strings"
)

// Entry status values. Privnode's own consumption logic may use more;
// this side only ever writes deployed and deactivated.
const (
	StatusOrdered     = "ordered"
	StatusDeploying   = "deploying"
	StatusDeployed    = "deployed"
	StatusDeactivated = "deactivated"
	StatusDisabled    = "disabled"
	StatusExpired     = "expired"
)

// UnitScale converts plan quota units into ledger quota points.
const UnitScale = 500000

// Limit is one quota window of an entry. Available and ResetAt are set
// once at creation and only Privnode's consumption logic may change
// them afterwards; every administrative transform copies them verbatim.
type Limit struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	ResetAt   int64 `json:"reset_at"`
}

// Duration is the validity window of an entry.
type Duration struct {
	StartAt          int64 `json:"start_at"`
	EndAt            int64 `json:"end_at"`
	AutoRenewEnabled bool  `json:"auto_renew_enabled"`
}

// Entry is one subscription's quota record inside a Privnode user's
// ledger array, keyed by SubscriptionID.
type Entry struct {
	PlanName       string   `json:"plan_name"`
	PlanID         string   `json:"plan_id"`
	SubscriptionID string   `json:"subscription_id"`
	Limit5h        Limit    `json:"5h_limit"`
	Limit7d        Limit    `json:"7d_limit"`
	Duration       Duration `json:"duration"`
	Owner          uint64   `json:"owner"`
	Status         string   `json:"status"`
	LastResetAt    *int64   `json:"last_reset_at,omitempty"`
}

// Grant holds the inputs for a first-time ledger entry.
type Grant struct {
	PlanName         string
	PlanID           string
	SubscriptionID   string
	Owner            uint64
	Limit5hUnits     int64
	Limit7dUnits     int64
	Now              int64
	EndAt            int64
	AutoRenewEnabled bool
}

// NewEntry builds the initial entry for a grant. Total and available
// start equal; reset_at starts at the grant time.
func NewEntry(g Grant) Entry {
	total5h := g.Limit5hUnits * UnitScale
	total7d := g.Limit7dUnits * UnitScale
	return Entry{
		PlanName:       g.PlanName,
		PlanID:         g.PlanID,
		SubscriptionID: g.SubscriptionID,
		Limit5h:        Limit{Total: total5h, Available: total5h, ResetAt: g.Now},
		Limit7d:        Limit{Total: total7d, Available: total7d, ResetAt: g.Now},
		Duration:       Duration{StartAt: g.Now, EndAt: g.EndAt, AutoRenewEnabled: g.AutoRenewEnabled},
		Owner:          g.Owner,
		Status:         StatusDeployed,
	}
}

// RedeployWithoutReset reactivates an entry for an owner with a fresh
// validity window. The limit blocks are copied verbatim.
func RedeployWithoutReset(entry Entry, now int64, owner uint64, endAt int64, autoRenew bool) Entry {
	out := entry
	out.Owner = owner
	out.Status = StatusDeployed
	out.Duration = Duration{StartAt: now, EndAt: endAt, AutoRenewEnabled: autoRenew}
	return out
}

// DeactivateWithoutReset pauses an entry. Nothing but the status changes.
func DeactivateWithoutReset(entry Entry) Entry {
	out := entry
	out.Status = StatusDeactivated
	return out
}

// TransferWithoutReset re-homes an entry onto a new owner with a fresh
// validity window. Field semantics match RedeployWithoutReset; the
// distinction is that a transfer crosses an ownership boundary.
func TransferWithoutReset(entry Entry, now int64, newOwner uint64, endAt int64, autoRenew bool) Entry {
	out := entry
	out.Owner = newOwner
	out.Status = StatusDeployed
	out.Duration = Duration{StartAt: now, EndAt: endAt, AutoRenewEnabled: autoRenew}
	return out
}

// Normalize parses a raw subscription_data column value. Null, empty,
// invalid JSON, and non-array content all degrade to an empty ledger
// rather than an error; the column is owned by an external system and
// its shape cannot be trusted.
func Normalize(raw string) []Entry {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return []Entry{}
	}
	var entries []Entry
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &entries); errUnmarshal != nil {
		return []Entry{}
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

// FindIndex returns the position of the entry keyed by subscriptionID,
// or -1 when absent.
func FindIndex(entries []Entry, subscriptionID string) int {
	for i, entry := range entries {
		if entry.SubscriptionID == subscriptionID {
			return i
		}
	}
	return -1
}

// Marshal encodes a ledger array for writing back to the column.
func Marshal(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, errMarshal := json.Marshal(entries)
	if errMarshal != nil {
		return "", errMarshal
	}
	return string(data), nil
}
