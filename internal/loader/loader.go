// Package loader turns a data directory into per-page documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// ErrPageOutOfRange is returned by PageText for a page the file does not have.
var ErrPageOutOfRange = errors.New("page out of range")

// Load walks dir in lexical order and returns one Document per PDF page
// (zero-based) plus one page-0 Document per .txt file. Other files are ignored.
func Load(ctx context.Context, dir string) ([]domain.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open data directory: %s is not a directory", dir)
	}

	var docs []domain.Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			pages, err := pdfPages(path)
			if err != nil {
				return err
			}
			for i, text := range pages {
				docs = append(docs, domain.Document{Content: text, Metadata: domain.Metadata{Source: path, Page: i}})
			}
		case ".txt":
			text, err := textFile(path)
			if err != nil {
				return err
			}
			docs = append(docs, domain.Document{Content: text, Metadata: domain.Metadata{Source: path}})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// PageText returns the text of one zero-based page of a PDF or .txt file.
func PageText(path string, page int) (string, error) {
	if page < 0 {
		return "", fmt.Errorf("%s page %d: %w", path, page, ErrPageOutOfRange)
	}
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		f, r, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("open pdf %s: %w", path, err)
		}
		defer f.Close()
		if page >= r.NumPage() {
			return "", fmt.Errorf("%s page %d: %w", path, page, ErrPageOutOfRange)
		}
		return pageText(r, page+1)
	}
	if page != 0 {
		return "", fmt.Errorf("%s page %d: %w", path, page, ErrPageOutOfRange)
	}
	return textFile(path)
}

func pdfPages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		text, err := pageText(r, i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pageText extracts page n (one-based, as the pdf reader counts).
func pageText(r *pdf.Reader, n int) (string, error) {
	p := r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", n-1, err)
	}
	return sanitize(text), nil
}

func textFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return sanitize(string(b)), nil
}

func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
