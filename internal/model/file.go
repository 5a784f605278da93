package model

import "time"

// StoredFile represents an uploaded object. The row is soft-deleted
// (deleted_at set) on explicit delete, expiry sweep, or grace-period
// enforcement; the object itself lives in R2 under StorageKey.
type StoredFile struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Name       string     `db:"name" json:"name"`
	StorageKey string     `db:"storage_key" json:"storage_key"`
	Folder     *string    `db:"folder" json:"folder,omitempty"`
	SizeBytes  int64      `db:"size_bytes" json:"size_bytes"`
	MimeType   string     `db:"mime_type" json:"mime_type"`
	IsPrivate  bool       `db:"is_private" json:"is_private"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// FolderInfo aggregates the direct children of a folder.
type FolderInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size"`
	FileCount int    `json:"file_count"`
}
