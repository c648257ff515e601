// Package notification delivers transient user notifications: transaction
// submissions, confirmations and failures.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
)

// Level is the severity shown to the user
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one transient message
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Operation string    `json:"operation,omitempty"`
	Slot      string    `json:"slot,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Explorer  string    `json:"explorerUrl,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
	Time      time.Time `json:"time"`
}

// New creates a notification with a fresh id and timestamp
func New(level Level, title, message string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    time.Now().UTC(),
	}
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier. Delivery continues past
// failures; the joined error is returned.
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ToActivity converts n into a persisted activity record
func ToActivity(n Notification) aws.ActivityRecord {
	return aws.ActivityRecord{
		Wallet:    n.Wallet,
		ID:        n.ID,
		Level:     string(n.Level),
		Title:     n.Title,
		Message:   n.Message,
		Operation: n.Operation,
		Slot:      n.Slot,
		TxHash:    n.TxHash,
		CreatedAt: n.Time.UTC().Format(time.RFC3339Nano),
	}
}
