package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"strings"

	// register decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/sevigo/shot-warden/internal/core"
)

// IsText reports whether a content type holds a text snapshot.
func IsText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/")
}

// Decode reads an image. An unreadable artifact cannot be fixed by retrying.
func Decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, core.Unretryable(fmt.Errorf("failed to decode image: %w", err))
	}
	if img.Bounds().Empty() {
		return nil, core.Unretryable(fmt.Errorf("%w: decoded %s has no pixels", ErrInvalidImage, format))
	}
	return img, nil
}

// Hash returns the hex sha256 of data. Diff artifacts are stored under it.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
