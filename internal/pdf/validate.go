// Package pdf downloads, validates and extracts text from research papers.
package pdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPDF is returned when a file is not a genuine PDF.
	ErrInvalidPDF = errors.New("not a valid PDF")

	// ErrNoText is returned when a PDF yields no extractable text.
	ErrNoText = errors.New("no text extracted from PDF")
)

var pdfMagic = []byte("%PDF")

// Validate checks that path has a .pdf extension, is non-empty and starts
// with the %PDF header.
func Validate(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fmt.Errorf("%w: extension %q", ErrInvalidPDF, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, header)
	if n == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidPDF)
	}
	if err != nil || !bytes.Equal(header, pdfMagic) {
		return fmt.Errorf("%w: bad header", ErrInvalidPDF)
	}
	return nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
