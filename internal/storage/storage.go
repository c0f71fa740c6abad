// Package storage saves product images and returns their public URL.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/config"
)

type ImageStore interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) (string, error)
	// Delete removes name. A missing object is not an error.
	Delete(ctx context.Context, name string) error
}

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

var (
	ErrUnsupportedType = apperr.Invalid("Invalid file type. Only .jpg, .jpeg, .png, .pdf are allowed.")
	ErrTooLarge        = apperr.Invalid("File too large")
	ErrEmptyUpload     = apperr.Invalid("No image uploaded")
)

type Upload struct {
	Data        []byte
	ContentType string
	Extension   string
}

// ReadUpload reads at most limit bytes and checks the content by its magic
// bytes rather than the client's declared type.
func ReadUpload(r io.Reader, limit int64) (*Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	contentType, _, _ := strings.Cut(mt.String(), ";")
	if !allowedTypes[contentType] {
		return nil, ErrUnsupportedType
	}

	return &Upload{Data: data, ContentType: contentType, Extension: mt.Extension()}, nil
}

func (u *Upload) Reader() io.Reader {
	return bytes.NewReader(u.Data)
}

// ObjectName returns a collision-free key for a product's image.
func ObjectName(productID int64, ext string) string {
	return fmt.Sprintf("products/%d/%s%s", productID, uuid.NewString(), ext)
}

func New(ctx context.Context, cfg config.StorageConfig) (ImageStore, error) {
	switch cfg.Driver {
	case "s3":
		s, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local", "":
		return NewLocalStore(cfg.LocalRoot, cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
