package conversation

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxAttachmentBytes caps images read from disk
const maxAttachmentBytes = 20 << 20

// Attachment is an image selected for the next send
type Attachment struct {
	Name string
	Data []byte
	// URI is the displayable reference stored on the user message
	URI string
}

// LoadAttachment reads an image from disk. Non-image files are refused.
func LoadAttachment(path string) (*Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attach %s: is a directory", path)
	}
	if info.Size() > maxAttachmentBytes {
		return nil, fmt.Errorf("attach %s: larger than %d MB", path, maxAttachmentBytes>>20)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("attach %s: %s is not an image", path, mt.String())
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return &Attachment{
		Name: filepath.Base(abs),
		Data: data,
		URI:  u.String(),
	}, nil
}
