package model

import (
	"strings"
	"time"
)

// Metadata keys recognized on journal documents.
const (
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaComments    = "comments" // JSON encoded []Comment
	MetaKeep        = "keep"     // "1" when the document is favorited
	MetaMimeType    = "mime_type"
	MetaTags        = "tags"
	MetaIconColor   = "icon-color"
	MetaActivity    = "activity"
	MetaPreview     = "preview" // base64 PNG thumbnail
)

// Mime types written by this program.
const (
	MimeAudioOgg = "audio/ogg"
	MimePDF      = "application/pdf"
	MimeHTML     = "text/html"
	MimeODP      = "application/vnd.oasis.opendocument.presentation"
)

// Document is a handle on one entry of the journal (the origin store).
//
// Metadata is a free-form string map; FilePath points at the binary payload
// and may be empty.
type Document struct {
	ID        string            `json:"id"`
	Metadata  map[string]string `json:"metadata"`
	FilePath  string            `json:"filePath"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewDocument returns a document with an empty metadata map.
func NewDocument() *Document {
	return &Document{Metadata: make(map[string]string)}
}

// Meta returns the metadata value for key, or "" when absent.
func (d *Document) Meta(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// SetMeta sets a metadata value, allocating the map if needed.
func (d *Document) SetMeta(key, value string) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
	d.Metadata[key] = value
}

// Favorited reports whether the document carries keep=1.
func (d *Document) Favorited() bool {
	return d.Meta(MetaKeep) == "1"
}

// IsImage reports whether the payload is an image.
func (d *Document) IsImage() bool {
	return strings.HasPrefix(d.Meta(MetaMimeType), "image")
}
