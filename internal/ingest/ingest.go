// Package ingest turns uploaded course material into content parts that can
// be sent to a multimodal model.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/pavelanni/studyhall/internal/model"
)

// DefaultMaxPDFPages bounds how many PDF pages are rasterized per file.
const DefaultMaxPDFPages = 30

// PageImage is one rendered PDF page.
type PageImage struct {
	Page      int
	MediaType string
	Data      []byte
}

// Rasterizer renders the first maxPages pages of a PDF to images.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, maxPages int) ([]PageImage, error)
}

// TextExtractor returns the plain text of every page of a PDF.
type TextExtractor interface {
	ExtractPages(ctx context.Context, pdf []byte) ([]string, error)
}

// Normalizer converts uploaded files into content parts.
type Normalizer struct {
	Rasterizer  Rasterizer
	Extractor   TextExtractor
	MaxPDFPages int
}

// NewNormalizer returns a Normalizer using pdftoppm for rasterization and a
// pure Go text extractor as the PDF fallback.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Rasterizer:  NewPdftoppm(),
		Extractor:   PDFText{},
		MaxPDFPages: DefaultMaxPDFPages,
	}
}

// Normalize converts files to content parts in input order. A file that cannot
// be processed contributes nothing; it never stops the remaining files.
func (n *Normalizer) Normalize(ctx context.Context, files []model.UploadedFile) []model.ContentPart {
	var parts []model.ContentPart
	for _, f := range files {
		mt := ResolveMediaType(f)
		var got []model.ContentPart
		switch {
		case strings.HasPrefix(mt, "image/"):
			got = imageParts(f, mt)
		case mt == "application/pdf":
			got = n.pdfParts(ctx, f)
		default:
			got = textParts(f)
		}
		if len(got) == 0 {
			slog.Warn("no content extracted from upload", "file", f.Name, "media_type", mt, "size", len(f.Data))
			continue
		}
		slog.Debug("normalized upload", "file", f.Name, "media_type", mt, "parts", len(got))
		parts = append(parts, got...)
	}
	return parts
}

// ResolveMediaType returns the declared media type without parameters, or a
// sniffed one when the declaration is missing or generic.
func ResolveMediaType(f model.UploadedFile) string {
	mt := baseType(f.MediaType)
	if (mt == "" || mt == "application/octet-stream") && len(f.Data) > 0 {
		mt = baseType(mimetype.Detect(f.Data).String())
	}
	return mt
}

func baseType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(s)
}

func imageParts(f model.UploadedFile, mt string) []model.ContentPart {
	if len(f.Data) == 0 {
		return nil
	}
	return []model.ContentPart{model.ImagePart(mt, base64.StdEncoding.EncodeToString(f.Data))}
}

func (n *Normalizer) pdfParts(ctx context.Context, f model.UploadedFile) []model.ContentPart {
	if len(f.Data) == 0 {
		return nil
	}
	maxPages := n.MaxPDFPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPDFPages
	}

	if n.Rasterizer != nil {
		pages, err := n.Rasterizer.Rasterize(ctx, f.Data, maxPages)
		if err != nil {
			slog.Warn("pdf rasterization failed, falling back to text", "file", f.Name, "error", err)
		}
		if len(pages) > maxPages {
			pages = pages[:maxPages]
		}
		var parts []model.ContentPart
		for _, p := range pages {
			if len(p.Data) == 0 {
				continue
			}
			mt := p.MediaType
			if mt == "" {
				mt = "image/png"
			}
			parts = append(parts,
				model.TextPart(fmt.Sprintf("Page %d of %s", p.Page, f.Name)),
				model.ImagePart(mt, base64.StdEncoding.EncodeToString(p.Data)),
			)
		}
		if len(parts) > 0 {
			return parts
		}
	}

	if n.Extractor == nil {
		return nil
	}
	pages, err := n.Extractor.ExtractPages(ctx, f.Data)
	if err != nil {
		slog.Warn("pdf text extraction failed", "file", f.Name, "error", err)
		return nil
	}
	var sb strings.Builder
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- %s, page %d ---\n%s\n\n", f.Name, i+1, text)
	}
	if sb.Len() == 0 {
		return nil
	}
	return []model.ContentPart{model.TextPart(strings.TrimSpace(sb.String()))}
}

func textParts(f model.UploadedFile) []model.ContentPart {
	if len(f.Data) == 0 || !utf8.Valid(f.Data) {
		return nil
	}
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), f.Data)
	if err != nil {
		return nil
	}
	text := string(bytes.TrimSpace(decoded))
	if text == "" {
		return nil
	}
	return []model.ContentPart{model.TextPart(fmt.Sprintf("--- %s ---\n%s", f.Name, text))}
}
