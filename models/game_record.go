// models/game_record.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	OutcomeWon       = "won"
	OutcomeAbandoned = "abandoned"
)

// GameRecord 游戏记录模型
type GameRecord struct {
	gorm.Model
	RoomName  string    `gorm:"index;not null" json:"room_name"`
	Players   []string  `gorm:"serializer:json;not null" json:"players"`
	Outcome   string    `gorm:"not null" json:"outcome"`
	Turns     int       `gorm:"default:0" json:"turns"`
	StartedAt time.Time `gorm:"not null" json:"started_at"`
	EndedAt   time.Time `gorm:"not null" json:"ended_at"`
}
