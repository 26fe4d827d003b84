package store

import "time"

// Table names of the three append-only collections.
const (
	InfoTable      = "InfoLogs"
	AttentionTable = "ExceptionAndWarningLogs"
	FailedTable    = "FailedLogs"
)

// InfoLog is a persisted Info record.
type InfoLog struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	ServiceName string    `gorm:"size:100;index" json:"serviceName"`
	Request     string    `gorm:"size:1000" json:"request"`
	Response    string    `gorm:"type:text" json:"response"`
}

func (InfoLog) TableName() string { return InfoTable }

// AttentionLog holds Warning and Exception records in one table, told apart
// by Level. Message carries warningMessage or exceptionMessage.
type AttentionLog struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	Level       string    `gorm:"size:20;index" json:"level"`
	ServiceName string    `gorm:"size:100;index" json:"serviceName"`
	Request     string    `gorm:"size:1000" json:"request"`
	Message     string    `gorm:"size:1000" json:"message"`
	Response    string    `gorm:"type:text" json:"response,omitempty"`
	StackTrace  string    `gorm:"type:text" json:"stackTrace,omitempty"`
}

func (AttentionLog) TableName() string { return AttentionTable }

// FailedLog is a persisted Failed record.
type FailedLog struct {
	ID              string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	ServiceName     string    `gorm:"size:100;index" json:"serviceName"`
	OriginalMessage string    `gorm:"type:text" json:"originalMessage"`
	FailedMessage   string    `gorm:"size:1000" json:"failedMessage"`
	StackTrace      string    `gorm:"type:text" json:"stackTrace,omitempty"`
}

func (FailedLog) TableName() string { return FailedTable }
