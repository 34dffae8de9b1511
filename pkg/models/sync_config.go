package models

// SyncConfig stores synchronization bookkeeping, e.g. the last successful pass
// per (crew, week) under key "last_sync:<crew>:<week_start>".
type SyncConfig struct {
	Key   string `json:"key" gorm:"primaryKey;type:varchar(255)"`
	Value string `json:"value" gorm:"type:text"`
}

// TableName specifies the table name for SyncConfig
func (SyncConfig) TableName() string {
	return "sync_configs"
}
