package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/haulwise/rebate-claims/internal/application/port"
	"go.uber.org/zap"
)

var _ port.ReceiptStore = (*ReceiptStore)(nil)

// ErrUnsupportedReceipt is returned for files that are neither an image nor a PDF
var ErrUnsupportedReceipt = errors.New("unsupported receipt file type")

var imageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// ReceiptStore resolves receipt image references. http(s) references are passed
// through for the analyzer to fetch; anything else is a path under baseDir.
type ReceiptStore struct {
	baseDir  string
	maxBytes int64
	pdfDPI   float64
	logger   *zap.Logger
}

// NewReceiptStore creates a store rooted at baseDir
func NewReceiptStore(baseDir string, maxBytes int64, pdfDPI int, logger *zap.Logger) *ReceiptStore {
	if pdfDPI <= 0 {
		pdfDPI = 150
	}
	return &ReceiptStore{
		baseDir:  baseDir,
		maxBytes: maxBytes,
		pdfDPI:   float64(pdfDPI),
		logger:   logger,
	}
}

// Load returns the receipt ready for analysis. PDFs are rasterized to a JPEG of the first page.
func (s *ReceiptStore) Load(ctx context.Context, ref string) (*port.ReceiptImage, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return &port.ReceiptImage{URL: ref}, nil
	}

	fullPath := filepath.Join(s.baseDir, ref)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("receipt file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("receipt path is a directory: %s", ref)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, fmt.Errorf("receipt file is %d bytes, limit is %d", info.Size(), s.maxBytes)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read receipt", zap.String("path", fullPath), zap.Error(err))
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}

	detected := mimetype.Detect(data)
	if detected.Is("application/pdf") {
		img, err := s.renderPDF(data)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("Rendered PDF receipt", zap.String("ref", ref), zap.Int("jpeg_bytes", len(img)))
		return &port.ReceiptImage{Data: img, MimeType: "image/jpeg"}, nil
	}

	for _, t := range imageTypes {
		if detected.Is(t) {
			return &port.ReceiptImage{Data: data, MimeType: t}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedReceipt, ref, detected.String())
}

// renderPDF rasterizes the first page; scale tickets are single-page
func (s *ReceiptStore) renderPDF(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, errors.New("PDF has no pages")
	}

	img, err := doc.ImageDPI(0, s.pdfDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// validatePath checks that the path is within baseDir
func (s *ReceiptStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes receipt directory: %s", fullPath)
	}
	return nil
}
