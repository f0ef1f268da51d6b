package model

import "time"

// Report is one crowd-sourced occupancy observation (append-only history).
type Report struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	LocationID int64     `gorm:"column:lokasi_id;not null;index" json:"lokasi_id"`
	Density    Status    `gorm:"column:kepadatan;size:16;not null" json:"kepadatan"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`

	Location Location `gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Report) TableName() string { return "laporan_parkir" }
