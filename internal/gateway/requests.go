package gateway

import (
	"time"

	"github.com/PaulBabatuyi/inboxd/internal/data"
)

type counterpartRequest struct {
	CounterpartID string `json:"counterpartId"`
}

type typingRequest struct {
	RecipientID string `json:"recipientId"`
}

type listRequest struct {
	Limit int64 `json:"limit"`
}

type historyRequest struct {
	CounterpartID string    `json:"counterpartId"`
	Before        time.Time `json:"before"`
	Limit         int64     `json:"limit"`
}

type notificationsRequest struct {
	Kind  data.NotificationKind `json:"type"`
	Page  int64                 `json:"page"`
	Limit int64                 `json:"limit"`
}

type notificationIDsRequest struct {
	IDs []string `json:"ids"`
}

type notificationIDRequest struct {
	ID string `json:"id"`
}

type countResult struct {
	Updated int64 `json:"updated"`
}
