package model

import (
	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

type OrderItemStatus string

const (
	OrderItemStatusPending   OrderItemStatus = "pending"
	OrderItemStatusCompleted OrderItemStatus = "completed"
)

// Test is a billable laboratory test, possibly decomposing into parameters.
type Test struct {
	Base
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Parameter is one analyte under a test, e.g. "Hemoglobin" under a CBC panel.
// A test with zero parameters is complete after a single result.
type Parameter struct {
	Base
	TestID uuid.UUID `db:"test_id" json:"test_id"`
	Code   string    `db:"code" json:"code"`
	Name   string    `db:"name" json:"name"`
	Unit   string    `db:"unit" json:"unit"`
}

type Order struct {
	Base
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	OrderNumber string      `db:"order_number" json:"order_number"`
	Status      OrderStatus `db:"status" json:"status"`
}

// OrderItem is one ordered test within an order. Its status is derived from
// its results, never set directly by a client.
type OrderItem struct {
	Base
	OrderID uuid.UUID       `db:"order_id" json:"order_id"`
	TestID  uuid.UUID       `db:"test_id" json:"test_id"`
	Status  OrderItemStatus `db:"status" json:"status"`
}

// Device is a measuring instrument referenced by a result.
type Device struct {
	Base
	Name         string `db:"name" json:"name"`
	SerialNumber string `db:"serial_number" json:"serial_number"`
}
