package storage

import (
	"time"
)

// Alert types.
const (
	TypePrice   = "price"
	TypeVolume  = "volume"
	TypeMACross = "ma_cross"
)

// Alert conditions.
const (
	ConditionAbove   = "above"
	ConditionBelow   = "below"
	ConditionCrosses = "crosses"
)

// Alert statuses. An alert only ever moves from active to triggered.
const (
	StatusActive    = "active"
	StatusTriggered = "triggered"
)

// Alert is a user defined price alert.
type Alert struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Type          string    `json:"type"`
	Condition     string    `json:"condition"`
	Value         string    `json:"value"`
	NotifyDiscord bool      `json:"notifyDiscord"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// AlertFields are the user editable parts of an alert.
type AlertFields struct {
	Symbol        string
	Type          string
	Condition     string
	Value         string
	NotifyDiscord bool
}

// TriggerEvent captures an alert trigger for auditing.
type TriggerEvent struct {
	ID        int64
	AlertID   string
	Symbol    string
	Condition string
	Threshold string
	Price     float64
	Notified  bool
	Error     *string
	CreatedAt time.Time
}
