// Package model contains the struct definitions shared by the ingestion
// pipeline, the stores and the HTTP layer.
package model

import (
	"strings"
)

// ItemStatus describes where a queued file is in its upload lifecycle.
type ItemStatus string

const (
	StatusIdle      ItemStatus = "idle"
	StatusUploading ItemStatus = "uploading"
	StatusSuccess   ItemStatus = "success"
	StatusError     ItemStatus = "error"
)

// CanceledMessage is stored on items aborted by the operator.
const CanceledMessage = "Upload canceled"

// SourceFile is a file as handed to the pipeline by the operator.
type SourceFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	// Data is never serialized; it can be several megabytes.
	Data []byte `json:"-"`
}

// Metadata is the descriptive information attached to a wallpaper.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags"`
	Dimensions  string   `json:"dimensions,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	return out
}

// QueuedItem is one file in an ingestion session.
type QueuedItem struct {
	ID                   string     `json:"id"`
	Source               SourceFile `json:"source"`
	Status               ItemStatus `json:"status"`
	Progress             int        `json:"progress"`
	Metadata             Metadata   `json:"metadata"`
	ObjectURL            string     `json:"objectUrl,omitempty"`
	ObjectKey            string     `json:"objectKey,omitempty"`
	Error                string     `json:"error,omitempty"`
	IsCanceled           bool       `json:"isCanceled"`
	IsRetrying           bool       `json:"isRetrying"`
	IsPendingPublication bool       `json:"isPendingPublication"`
}

// Clone returns a deep copy of the item without the source bytes.
func (q *QueuedItem) Clone() QueuedItem {
	out := *q
	out.Source.Data = nil
	out.Metadata = q.Metadata.Clone()
	return out
}

// UnpublishedUpload identifies a stored object that still lacks a catalog
// document.
type UnpublishedUpload struct {
	ItemID    string `json:"itemId"`
	ObjectURL string `json:"objectUrl"`
}

// CSVRow is a single metadata row keyed by lower-cased column name.
type CSVRow map[string]string

// Get returns the trimmed value of column.
func (r CSVRow) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// CategoryOption is a selectable category.
type CategoryOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
