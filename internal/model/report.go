package model

import (
	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportStatusPreliminary ReportStatus = "preliminary"
	ReportStatusFinal       ReportStatus = "final"
)

// Report is generated once per order when every item completes. The storage
// layer enforces the once-per-order rule with a unique index on order_id.
type Report struct {
	Base
	OrderID        uuid.UUID    `db:"order_id" json:"order_id"`
	SequenceNumber int64        `db:"sequence_number" json:"sequence_number"`
	GeneratedBy    uuid.UUID    `db:"generated_by" json:"generated_by"`
	Status         ReportStatus `db:"status" json:"status"`
}
