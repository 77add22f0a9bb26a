// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
//   - base.go: BaseModel and AggregateModel
//   - purchasing.go: purchase orders, items, history, returns, suppliers and the stock ledger
//   - outbox.go: purchase order events waiting for delivery
package models
