package audit

import "time"

// Event is one row of the audit trail.
type Event struct {
	ID               int64     `json:"id"`
	UserID           *int64    `json:"user_id"`
	Username         *string   `json:"username,omitempty"`
	Action           string    `json:"action"`
	EntityType       *string   `json:"entity_type"`
	EntityID         *int64    `json:"entity_id"`
	RequestContextID *string   `json:"request_context_id"`
	Details          *string   `json:"details"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	ActionGenerateEmail         = "generate_email"
	ActionGenerateReport        = "generate_report"
	ActionUserRegistered        = "user_registered"
	ActionLoginSuccess          = "login_success"
	ActionLoginFailed           = "login_failed"
	ActionAdminUserCreated      = "admin_user_created"
	ActionAdminBootstrapCreated = "admin_bootstrap_created"
)

// EntityDocument is the entity type recorded for generation events.
const EntityDocument = "document"

// FailedAction derives the failure action name for a generation action.
func FailedAction(action string) string {
	return action + "_failed"
}

// New builds an event for a user; empty optional values stay nil.
func New(userID int64, action string) Event {
	return Event{UserID: &userID, Action: action}
}

// WithEntity sets the entity reference.
func (e Event) WithEntity(entityType string, entityID *int64) Event {
	e.EntityType = &entityType
	e.EntityID = entityID
	return e
}

// WithDetails sets free-text detail.
func (e Event) WithDetails(details string) Event {
	e.Details = &details
	return e
}

// WithCorrelation sets the request correlation id.
func (e Event) WithCorrelation(correlationID string) Event {
	if correlationID == "" {
		return e
	}
	e.RequestContextID = &correlationID
	return e
}
