// Package types defines the domain records, enums, and error taxonomy shared
// across the email delivery subsystem. All persistence and service packages
// depend on these types; nothing here depends on infrastructure.
package types

import (
	"fmt"
	"strings"
	"time"
)

// EmailJob is one persisted send intent with a lifecycle and retry state.
// The job id is assigned at creation and stable across retries; the
// dedupe_key is globally unique over the row's entire lifetime, including
// cancel/reopen cycles.
type EmailJob struct {
	ID                string
	BatchID           *string
	Type              JobType
	Status            JobStatus
	DedupeKey         string
	OrderID           string
	ToEmail           string
	FromEmail         string
	ReplyToEmail      string
	Subject           string
	Payload           *OrderEmailPayload
	ProviderMessageID string
	AttemptCount      int
	MaxAttempts       int
	NextAttemptAt     time.Time
	LockedUntil       *time.Time
	LockedBy          string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
}

// EmailBatch groups jobs created by one bulk operation. It owns no jobs;
// jobs merely reference it and survive its deletion.
type EmailBatch struct {
	ID        string
	Kind      string
	CreatedBy string
	Meta      JSONMap
	CreatedAt time.Time
}

// EmailEvent is an append-only record of one inbound provider webhook
// notification. The job reference is weak: correlation may fail and the
// referenced job may be deleted later.
type EmailEvent struct {
	ID                string
	JobID             *string
	ProviderMessageID string
	EventType         string
	Payload           JSONMap
	ReceivedAt        time.Time
}

// EmailSuppression blocks all future sends to one normalized address.
// The address itself is the primary key; re-observing a suppressed address
// is a no-op, not an error.
type EmailSuppression struct {
	Email     string
	Reason    SuppressionReason
	Source    string
	Meta      JSONMap
	CreatedAt time.Time
}

// OrderEmailPayload is the immutable snapshot captured at enqueue time of
// everything rendering needs. Rendering is a pure function of this payload,
// never of live order or event state. Confirmation and reminder share one
// structure; the Reminder flag selects the variant.
type OrderEmailPayload struct {
	Name             string  `json:"name"`
	ItemID           string  `json:"item_id"`
	ItemName         string  `json:"item_name"`
	Quantity         int     `json:"quantity"`
	PickupLocation   string  `json:"pickup_location"`
	PickupTimeSlot   string  `json:"pickup_time_slot"`
	PhoneNumber      string  `json:"phone_number"`
	Email            string  `json:"email"`
	TotalPrice       float64 `json:"total_price"`
	PricePerItem     float64 `json:"price_per_item"`
	Currency         string  `json:"currency"`
	Address          string  `json:"address"`
	EventDate        string  `json:"event_date"`
	EtransferEnabled bool    `json:"etransfer_enabled"`
	EtransferEmail   string  `json:"etransfer_email,omitempty"`
	Reminder         bool    `json:"reminder"`
}

// ReopenParams carries the fields rewritten when a cancelled job row is
// reused in place. Reopening resets every volatile column: addressing,
// payload, attempt counters, lock state, and send bookkeeping.
type ReopenParams struct {
	BatchID      *string
	Status       JobStatus
	ToEmail      string
	FromEmail    string
	ReplyToEmail string
	Payload      *OrderEmailPayload
	MaxAttempts  int
	LastError    string
}

// Order is a read-only snapshot of an order record owned by the ordering
// subsystem. It is read at enqueue time only.
type Order struct {
	ID             string
	Name           string
	Email          string
	PhoneNumber    string
	Status         OrderStatus
	ItemID         string
	ItemName       string
	Quantity       int
	TotalPrice     float64
	PickupLocation string
	PickupTimeSlot string
	EventID        *int64
	ExcludeEmail   bool
	Reminded       bool
}

// Event is a read-only view of an event record: pickup date and e-transfer
// settings resolved into the payload snapshot.
type Event struct {
	ID               int64
	EventDate        string
	IsActive         bool
	EtransferEnabled bool
	EtransferEmail   string
}

// Location is a read-only view of a pickup location.
type Location struct {
	ID      string
	Name    string
	Address string
}

// DedupeKey returns the deterministic identity string for a (type, order)
// pair. At most one non-cancelled job row may ever exist per key.
func DedupeKey(jobType JobType, orderID string) string {
	return fmt.Sprintf("%s:%s", jobType, orderID)
}

// NormalizeEmail canonicalizes an address for suppression lookups and
// dedupe-insensitive comparisons: trimmed and lower-cased.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
