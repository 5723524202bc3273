package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	internaldb "github.com/privnode/subscription-station/internal/db"
	"gorm.io/gorm"
)

// Privnode group labels written alongside ledger mutations.
const (
	// GroupSubscription marks a user holding at least one deployed entry.
	GroupSubscription = "subscription"
	// GroupDefault is the baseline tier for users with no deployed entries.
	GroupDefault = "default"
)

// Store error codes. The message is the stable code.
var (
	ErrIdentifierRequired = errors.New("privnode_identifier_required")
	ErrUserNotFound       = errors.New("privnode_user_not_found")
	ErrEntryNotFound      = errors.New("subscription_not_found")
	ErrNotDeactivated     = errors.New("already_present_not_deactivated")
	ErrNotFoundOnSource   = errors.New("subscription_not_found_on_source")
	ErrAlreadyOnTarget    = errors.New("subscription_already_exists_on_target")
)

// User mirrors the row shape this side needs from Privnode's users
// table. The table is owned and migrated by Privnode; only the group
// label and the subscription_data column are ever written here.
type User struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	Username         string `gorm:"column:username"`
	Group            string `gorm:"column:group"`
	SubscriptionData string `gorm:"column:subscription_data"`
}

// TableName maps onto Privnode's users table.
func (User) TableName() string {
	return "users"
}

var numericIdentifier = regexp.MustCompile(`^\d+$`)

// Store performs row-locked ledger mutations against the Privnode
// database. Every mutation is a read-modify-write of the full ledger
// array inside one transaction; the row lock on the user record is the
// sole mutual-exclusion mechanism.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store on an open Privnode connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindUserByIdentifier resolves a Privnode user without locking.
// Purely numeric identifiers are looked up by id, anything else by
// username; blank identifiers are rejected before any query.
func (s *Store) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return findUser(s.db.WithContext(ctx), identifier)
}

func findUser(tx *gorm.DB, identifier string) (*User, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return nil, ErrIdentifierRequired
	}

	var user User
	var errFind error
	if numericIdentifier.MatchString(raw) {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			return nil, ErrUserNotFound
		}
		errFind = tx.Where("id = ?", id).First(&user).Error
	} else {
		errFind = tx.Where("username = ?", raw).First(&user).Error
	}
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ledger: find user: %w", errFind)
	}
	return &user, nil
}

// lockUserByID re-reads a user row under a row lock.
func lockUserByID(tx *gorm.DB, id uint64) (*User, error) {
	var user User
	if errFind := internaldb.WithRowLock(tx).Where("id = ?", id).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ledger: lock user %d: %w", id, errFind)
	}
	return &user, nil
}

// Entry returns one user's ledger entry for a subscription, or
// ErrEntryNotFound when absent. Read-only; no lock.
func (s *Store) Entry(ctx context.Context, userID uint64, subscriptionID string) (*Entry, error) {
	var user User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ledger: read user %d: %w", userID, errFind)
	}
	entries := Normalize(user.SubscriptionData)
	idx := FindIndex(entries, subscriptionID)
	if idx == -1 {
		return nil, ErrEntryNotFound
	}
	entry := entries[idx]
	return &entry, nil
}

// Deploy places a subscription's entry on the user named by identifier.
// A first deploy appends the entry built by buildInitial; a redeploy is
// only allowed from deactivated status and never resets quota. The
// user's group is promoted to the subscription tier.
func (s *Store) Deploy(
	ctx context.Context,
	identifier, subscriptionID string,
	buildInitial func(owner uint64) Entry,
	now, endAt int64,
	autoRenew bool,
) (*User, error) {
	var deployed *User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, errFind := findUser(tx, identifier)
		if errFind != nil {
			return errFind
		}
		user, errLock := lockUserByID(tx, resolved.ID)
		if errLock != nil {
			return errLock
		}

		entries := Normalize(user.SubscriptionData)
		idx := FindIndex(entries, subscriptionID)
		if idx == -1 {
			entries = append(entries, buildInitial(user.ID))
		} else {
			if entries[idx].Status != StatusDeactivated {
				return ErrNotDeactivated
			}
			entries[idx] = RedeployWithoutReset(entries[idx], now, user.ID, endAt, autoRenew)
		}

		if errSave := saveLedger(tx, user.ID, entries, GroupSubscription); errSave != nil {
			return errSave
		}
		deployed = user
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return deployed, nil
}

// Deactivate marks a subscription's entry deactivated without touching
// its quota fields. When no deployed entries remain the user's group is
// demoted back to the default tier.
func (s *Store) Deactivate(ctx context.Context, userID uint64, subscriptionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, errLock := lockUserByID(tx, userID)
		if errLock != nil {
			return errLock
		}

		entries := Normalize(user.SubscriptionData)
		idx := FindIndex(entries, subscriptionID)
		if idx == -1 {
			return ErrEntryNotFound
		}
		entries[idx] = DeactivateWithoutReset(entries[idx])

		group := user.Group
		if !hasDeployed(entries) {
			group = GroupDefault
		}
		return saveLedger(tx, user.ID, entries, group)
	})
}

// Transfer moves a subscription's entry from one user to the user named
// by toIdentifier, preserving quota. Both rows are locked in ascending
// user-id order so concurrent reverse transfers cannot deadlock.
func (s *Store) Transfer(
	ctx context.Context,
	fromUserID uint64,
	toIdentifier, subscriptionID string,
	now, endAt int64,
	autoRenew bool,
) (*User, error) {
	var target *User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, errFind := findUser(tx, toIdentifier)
		if errFind != nil {
			return errFind
		}

		if resolved.ID == fromUserID {
			// Same-user transfer: the entry is already on the target.
			user, errLock := lockUserByID(tx, fromUserID)
			if errLock != nil {
				return errLock
			}
			entries := Normalize(user.SubscriptionData)
			if FindIndex(entries, subscriptionID) == -1 {
				return ErrNotFoundOnSource
			}
			return ErrAlreadyOnTarget
		}

		var from, to *User
		first, second := fromUserID, resolved.ID
		if second < first {
			first, second = second, first
		}
		for _, id := range []uint64{first, second} {
			locked, errLock := lockUserByID(tx, id)
			if errLock != nil {
				return errLock
			}
			if id == fromUserID {
				from = locked
			} else {
				to = locked
			}
		}

		fromEntries := Normalize(from.SubscriptionData)
		idx := FindIndex(fromEntries, subscriptionID)
		if idx == -1 {
			return ErrNotFoundOnSource
		}
		entry := fromEntries[idx]
		fromEntries = append(fromEntries[:idx], fromEntries[idx+1:]...)

		toEntries := Normalize(to.SubscriptionData)
		if FindIndex(toEntries, subscriptionID) != -1 {
			return ErrAlreadyOnTarget
		}
		toEntries = append(toEntries, TransferWithoutReset(entry, now, to.ID, endAt, autoRenew))

		if errSave := saveLedger(tx, from.ID, fromEntries, from.Group); errSave != nil {
			return errSave
		}
		if errSave := saveLedger(tx, to.ID, toEntries, GroupSubscription); errSave != nil {
			return errSave
		}
		target = to
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return target, nil
}

// Remove deletes a subscription's entry from its owner's ledger. Used
// by the expiry sweep to retract entries for expired subscriptions.
func (s *Store) Remove(ctx context.Context, userID uint64, subscriptionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, errLock := lockUserByID(tx, userID)
		if errLock != nil {
			return errLock
		}

		entries := Normalize(user.SubscriptionData)
		idx := FindIndex(entries, subscriptionID)
		if idx == -1 {
			return ErrEntryNotFound
		}
		entries = append(entries[:idx], entries[idx+1:]...)
		return saveLedger(tx, user.ID, entries, user.Group)
	})
}

// saveLedger writes the full ledger array and group label back onto the
// user row. Partial or field-level JSON updates are never attempted.
func saveLedger(tx *gorm.DB, userID uint64, entries []Entry, group string) error {
	data, errMarshal := Marshal(entries)
	if errMarshal != nil {
		return fmt.Errorf("ledger: marshal entries: %w", errMarshal)
	}
	if errUpdate := tx.Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
		"group":             group,
		"subscription_data": data,
	}).Error; errUpdate != nil {
		return fmt.Errorf("ledger: write user %d: %w", userID, errUpdate)
	}
	return nil
}

func hasDeployed(entries []Entry) bool {
	for _, entry := range entries {
		if entry.Status == StatusDeployed {
			return true
		}
	}
	return false
}
