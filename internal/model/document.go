package model

import "time"

// Document is one uploaded, versioned PDF drawing tied to a Variant.
// URL is derived from StorageLocation through the storage backend at read
// time and is never persisted.
type Document struct {
	ID               string    `json:"id"`
	VariantID        string    `json:"variant_id"`
	StorageLocation  string    `json:"storage_location"`
	URL              string    `json:"url,omitempty"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	ChecksumSHA256   string    `json:"checksum_sha256"`
	PageCount        *int      `json:"page_count"`
	Version          int       `json:"version"`
	FileSize         int64     `json:"file_size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	IsActive         bool      `json:"is_active"`
}

// UploadInput carries what the request layer knows about an uploaded file.
// Size is -1 when the caller cannot tell.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
}
