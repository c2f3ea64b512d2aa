package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusNotified     AlertStatus = "notified"
	AlertStatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusAcknowledged, AlertStatusNotified, AlertStatusResolved:
		return true
	}
	return false
}

// alertTransitions is the closed transition table for the alert lifecycle.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusPending:      {AlertStatusAcknowledged, AlertStatusNotified},
	AlertStatusAcknowledged: {AlertStatusResolved},
	AlertStatusNotified:     {AlertStatusResolved},
	AlertStatusResolved:     {},
}

// CanTransition reports whether the lifecycle allows moving from s to target.
func (s AlertStatus) CanTransition(target AlertStatus) bool {
	for _, next := range alertTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// CriticalAlert is one row per critical result requiring human attention.
// At most one unresolved alert exists per result; the storage layer enforces
// this with a partial unique index on result_id.
type CriticalAlert struct {
	Base
	ResultID           uuid.UUID      `db:"result_id" json:"result_id"`
	ValueSnapshot      string         `db:"value_snapshot" json:"value_snapshot"`
	Interpretation     Interpretation `db:"interpretation" json:"interpretation"`
	Status             AlertStatus    `db:"status" json:"status"`
	AcknowledgedBy     *uuid.UUID     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt     *time.Time     `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	NotifiedRecipient  *uuid.UUID     `db:"notified_recipient" json:"notified_recipient,omitempty"`
	NotificationMethod string         `db:"notification_method" json:"notification_method,omitempty"`
	NotifiedAt         *time.Time     `db:"notified_at" json:"notified_at,omitempty"`
	ResolvedBy         *uuid.UUID     `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes    string         `db:"resolution_notes" json:"resolution_notes,omitempty"`
}

// AlertTransitionRequest carries the caller-supplied target status plus the
// fields the corresponding transition records.
type AlertTransitionRequest struct {
	Status             string     `json:"status" binding:"required"`
	NotifiedRecipient  *uuid.UUID `json:"notified_recipient"`
	NotificationMethod string     `json:"notification_method"`
	ResolutionNotes    string     `json:"resolution_notes"`
}
