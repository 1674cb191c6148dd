package models

import "time"

// FileAsset is the metadata descriptor for one uploaded attachment. The
// binary payload lives in the object store; this row lives in Postgres. The
// two are kept consistent by the attachment service's compensation protocol.
type FileAsset struct {
	ID               string    `db:"id" json:"id"`
	VersionID        string    `db:"version_id" json:"versionId"`
	OriginalFilename string    `db:"original_filename" json:"originalFilename"`
	DisplayName      *string   `db:"display_name" json:"displayName,omitempty"`
	Bucket           string    `db:"bucket" json:"bucket"`
	ObjectPath       string    `db:"object_path" json:"objectPath"`
	MimeType         string    `db:"mime_type" json:"mimeType"`
	SizeBytes        int64     `db:"size_bytes" json:"sizeBytes"`
	UploadedBy       string    `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// VersionInfo carries the facts the file guards need about a version: its
// workflow state and who owns the parent syllabus.
type VersionInfo struct {
	VersionID  string         `db:"version_id"`
	SyllabusID string         `db:"syllabus_id"`
	OwnerID    string         `db:"owner_id"`
	Status     WorkflowStatus `db:"status"`
}
