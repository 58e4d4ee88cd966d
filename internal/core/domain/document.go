package domain

import (
	"sort"
	"time"
)

type DocumentType string

type DocumentStatus string

const (
	DocumentUploaded DocumentStatus = "uploaded"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

func (s DocumentStatus) IsReviewOutcome() bool {
	return s == DocumentVerified || s == DocumentRejected
}

// Document is one uploaded artifact of a case. Records are never overwritten;
// a re-upload of the same type supersedes the previous record.
type Document struct {
	ID           string         `json:"id"`
	CaseID       string         `json:"case_id"`
	DocumentType DocumentType   `json:"document_type"`
	Filename     string         `json:"filename"`
	ContentType  string         `json:"content_type"`
	SizeBytes    int64          `json:"size_bytes"`
	StorageRef   string         `json:"storage_ref"`
	Status       DocumentStatus `json:"status"`
	UploadedBy   string         `json:"uploaded_by"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	ReviewedBy   string         `json:"reviewed_by,omitempty"`
	ReviewNote   string         `json:"review_note,omitempty"`
	ReviewedAt   *time.Time     `json:"reviewed_at,omitempty"`
	Superseded   bool           `json:"superseded"`
}

// StoredFile describes bytes already written to object storage.
type StoredFile struct {
	Filename    string
	ContentType string
	SizeBytes   int64
	StorageRef  string
}

// LatestByType returns the most recent record per document type.
func LatestByType(docs []Document) map[DocumentType]Document {
	latest := latestIndexByType(docs)
	out := make(map[DocumentType]Document, len(latest))
	for docType, idx := range latest {
		out[docType] = docs[idx]
	}
	return out
}

func latestIndexByType(docs []Document) map[DocumentType]int {
	latest := make(map[DocumentType]int)
	for i, doc := range docs {
		prev, ok := latest[doc.DocumentType]
		if !ok || !doc.UploadedAt.Before(docs[prev].UploadedAt) {
			latest[doc.DocumentType] = i
		}
	}
	return latest
}

// SortDocuments orders records by upload time, oldest first.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
}
