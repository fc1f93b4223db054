package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events that change who can receive or claim funds.
	// Examples: alias registration and deletion, recorded settlements.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: signature failures, replayed requests, settlements failing after broadcast.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that is useful for debugging.
	// Examples: destination issuance, receipt acknowledgment.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventAliasRegistered      AuditEvent = "alias_registered"
	EventAliasDeleted         AuditEvent = "alias_deleted"
	EventDestinationIssued    AuditEvent = "destination_issued"
	EventSettlementRecorded   AuditEvent = "settlement_recorded"
	EventSettlementFailed     AuditEvent = "settlement_failed"
	EventReceiptsCollected    AuditEvent = "receipts_collected"
	EventReceiptsAcknowledged AuditEvent = "receipts_acknowledged"
	EventAuthFailed           AuditEvent = "auth_failed"
	EventRateLimitExceeded    AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAliasRegistered:    CategoryCompliance,
	EventAliasDeleted:       CategoryCompliance,
	EventSettlementRecorded: CategoryCompliance,

	EventAuthFailed:        CategorySecurity,
	EventSettlementFailed:  CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,

	EventDestinationIssued:    CategoryOperations,
	EventReceiptsCollected:    CategoryOperations,
	EventReceiptsAcknowledged: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// IdentityKey is the wallet the event concerns. For auth failures it is the
	// claimed key, which is not proven.
	IdentityKey string
	Alias       string
	Reference   string
	TxID        string
	Satoshis    uint64
	Reason      string
	IP          string
	RequestID   string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identityKey string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Emitter is what services depend on. The publisher implements it.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
