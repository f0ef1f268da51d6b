package model

import "time"

// Location represents a physical parking area and its current occupancy (hot table).
type Location struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"column:nama;size:128;not null" json:"nama"`
	Capacity  int       `gorm:"column:kapasitas;not null" json:"kapasitas"`
	Status    Status    `gorm:"size:16;not null;default:kosong;index" json:"status"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName keeps the table name used by the existing deployment.
func (Location) TableName() string { return "lokasi_parkir" }
