package domain

import "time"

// RecordNamespace is the key namespace download records are stored under
const RecordNamespace = "download"

// DownloadRecord remembers which file a version key was downloaded to
type DownloadRecord struct {
	Namespace  string    `json:"namespace" gorm:"primaryKey"`
	VersionKey string    `json:"version_key" gorm:"primaryKey"`
	FilePath   string    `json:"file_path" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (DownloadRecord) TableName() string {
	return "download_records"
}

// NewDownloadRecord creates a record in the default namespace
func NewDownloadRecord(versionKey, filePath string) *DownloadRecord {
	return &DownloadRecord{
		Namespace:  RecordNamespace,
		VersionKey: versionKey,
		FilePath:   filePath,
	}
}

// DownloadRecordStore defines the interface for download record persistence
type DownloadRecordStore interface {
	// Get returns the record for versionKey, or nil if none exists
	Get(versionKey string) (*DownloadRecord, error)

	// Put stores record, replacing any record with the same version key
	Put(record *DownloadRecord) error

	// List returns all records, newest first
	List() ([]*DownloadRecord, error)

	// Delete removes the record for versionKey; missing records are not an error
	Delete(versionKey string) error
}
