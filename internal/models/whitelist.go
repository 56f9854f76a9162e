package models

import "time"

type WhitelistEntry struct {
	Email     string    `gorm:"column:email;type:text;primaryKey" json:"email"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"created_at"`
}

func (WhitelistEntry) TableName() string { return "whitelist" }
