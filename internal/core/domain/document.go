package domain

import (
	"io"
	"math"
)

type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

// Terminal reports whether no further transitions follow this status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// UploadFile is a file handle handed to the upload orchestrator.
type UploadFile struct {
	Name    string
	Size    int64
	Content io.ReaderAt
}

type FileInfo struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	PageCount int    `json:"page_count,omitempty"`
}

type UploadReceipt struct {
	DocumentID     string           `json:"documentId"`
	FileName       string           `json:"fileName"`
	FileSize       int64            `json:"fileSize"`
	ParagraphCount int              `json:"paragraphCount"`
	Status         ProcessingStatus `json:"status"`
	CreatedAt      string           `json:"createdAt"`
}

type DocumentStatus struct {
	DocumentID         string           `json:"documentId"`
	FileName           string           `json:"fileName,omitempty"`
	Status             ProcessingStatus `json:"status"`
	TotalParagraphs    int              `json:"totalParagraphs"`
	EmbeddedParagraphs int              `json:"embeddedParagraphs"`
	EmbeddingComplete  bool             `json:"embeddingComplete"`
	ErrorMessage       string           `json:"errorMessage,omitempty"`
}

// RawProgress converts the paragraph counters into a 0..100 percentage.
func (s DocumentStatus) RawProgress() int {
	if s.TotalParagraphs <= 0 {
		return 0
	}
	ratio := float64(s.EmbeddedParagraphs) / float64(s.TotalParagraphs) * 100
	return int(math.Round(math.Max(0, math.Min(100, ratio))))
}

// Progress is what pollers report to their callers. Estimated marks
// placeholder values shown before the first real status arrives.
type Progress struct {
	Percent   int              `json:"percent"`
	Estimated bool             `json:"estimated,omitempty"`
	Status    ProcessingStatus `json:"status,omitempty"`
}
