// Package textextract obtains normalized text from NFS-e PDFs. Pages with a
// native text layer are read directly; pages without one are rasterized with
// pdftoppm and run through tesseract.
package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Language  string // tesseract language, default "por"
	DPI       int    // rasterization DPI for scanned pages, default 300
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "por"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithLanguage returns a copy of the extractor configured for another OCR
// language. Jobs may override the language per submission.
func (e *Extractor) WithLanguage(lang string) *Extractor {
	if lang == "" {
		return e
	}
	clone := *e
	clone.cfg.Language = lang
	return &clone
}

// Extract returns the newline-joined normalized text of every page of the
// PDF at path. A page that fails extraction is logged and skipped; a
// document yielding no text at all returns the empty string.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("pdf close failed", "path", path, "error", cerr)
		}
	}()

	var chunks []string
	for i := 1; i <= r.NumPage(); i++ {
		text := e.pageText(r, i, path)
		if text != "" {
			chunks = append(chunks, text)
			continue
		}

		e.logger.Info("running ocr fallback", "file", filepath.Base(path), "page", i)
		ocrText, err := e.ocrPage(ctx, path, i)
		if err != nil {
			e.logger.Warn("ocr fallback failed", "file", filepath.Base(path), "page", i, "error", err)
			continue
		}
		if ocrText != "" {
			chunks = append(chunks, ocrText)
		}
	}

	return strings.Join(chunks, "\n"), nil
}

func (e *Extractor) pageText(r *pdf.Reader, num int, path string) string {
	page := r.Page(num)
	if page.V.IsNull() {
		return ""
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("text layer extraction failed", "file", filepath.Base(path), "page", num, "error", err)
		return ""
	}
	return Normalize(raw)
}

// ocrPage rasterizes one page and runs it through tesseract.
func (e *Extractor) ocrPage(ctx context.Context, path string, page int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "nfse-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("temp dir cleanup failed", "dir", tmpDir, "error", rerr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", fmt.Sprintf("%d", page), "-l", fmt.Sprintf("%d", page),
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no image for page %d", page)
	}

	// tesseract <image> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, matches[0], "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return Normalize(string(out)), nil
}
