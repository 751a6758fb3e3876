package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Pdftoppm rasterizes PDFs with the poppler pdftoppm binary.
type Pdftoppm struct {
	Binary  string
	DPI     int
	Timeout time.Duration // zero means no limit beyond ctx
}

func NewPdftoppm() *Pdftoppm {
	return &Pdftoppm{Binary: "pdftoppm", DPI: 110}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, data []byte, maxPages int) ([]PageImage, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%s not found in PATH", bin)
	}

	dir, err := os.MkdirTemp("", "studyhall-pdf-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 110
	}
	args := []string{"-png", "-r", strconv.Itoa(dpi), "-f", "1", "-l", strconv.Itoa(maxPages), in, filepath.Join(dir, "page")}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(msg)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	pages := make([]PageImage, 0, len(matches))
	for _, m := range matches {
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "page-"), ".png"))
		if err != nil {
			continue
		}
		img, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageImage{Page: num, MediaType: "image/png", Data: img})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}

// PDFText extracts page text with a pure Go PDF reader.
type PDFText struct{}

func (PDFText) ExtractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// The reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
