package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
// Order creation keys are scoped per principal ("order#<principal>#<key>");
// worker deduplication keys per event ("event#<event id>").
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	PrincipalID    string    `dynamodbav:"principal_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// OrderKey scopes a client supplied Idempotency-Key to its principal so two
// principals cannot replay each other's orders.
func OrderKey(principalID, key string) string {
	return "order#" + principalID + "#" + key
}

// EventKey is the dedupe key of a lifecycle event.
func EventKey(eventID string) string {
	return "event#" + eventID
}
