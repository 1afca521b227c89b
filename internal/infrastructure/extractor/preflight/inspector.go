package preflight

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

const DefaultMaxBytes int64 = 50 << 20

// Inspector rejects files the backend would refuse before any bytes are sent.
type Inspector struct {
	maxBytes int64
}

func NewInspector(maxBytes int64) *Inspector {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Inspector{maxBytes: maxBytes}
}

func (i *Inspector) Inspect(name string, body io.ReaderAt, size int64) (domain.FileInfo, error) {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return domain.FileInfo{}, invalid(errors.New("file name is required"))
	}
	if body == nil {
		return domain.FileInfo{}, invalid(errors.New("no file selected"))
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".pdf" && ext != ".docx" {
		return domain.FileInfo{}, invalid(fmt.Errorf("unsupported file type %q: only .pdf and .docx are accepted", ext))
	}
	if size <= 0 {
		return domain.FileInfo{}, invalid(errors.New("file is empty"))
	}
	if size > i.maxBytes {
		return domain.FileInfo{}, invalid(fmt.Errorf("file size %d exceeds limit of %d bytes", size, i.maxBytes))
	}

	info := domain.FileInfo{Name: name, Extension: ext, Size: size}
	switch ext {
	case ".pdf":
		pages, err := pageCount(body, size)
		if err != nil {
			return domain.FileInfo{}, invalid(fmt.Errorf("%s is not a readable pdf: %w", name, err))
		}
		info.PageCount = pages
	case ".docx":
		if err := checkDocx(body, size); err != nil {
			return domain.FileInfo{}, invalid(fmt.Errorf("%s is not a readable docx: %w", name, err))
		}
	}
	return info, nil
}

// pageCount recovers from parser panics; malformed xref tables are common.
func pageCount(body io.ReaderAt, size int64) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(body, size)
	if err != nil {
		return 0, err
	}
	pages = reader.NumPage()
	if pages <= 0 {
		return 0, errors.New("document has no pages")
	}
	return pages, nil
}

func checkDocx(body io.ReaderAt, size int64) error {
	archive, err := zip.NewReader(body, size)
	if err != nil {
		return err
	}
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			return nil
		}
	}
	return errors.New("missing word/document.xml")
}

func invalid(err error) error {
	return domain.WrapError(domain.ErrInvalidInput, "inspect file", err)
}
