// Package attachment stages a single selected file for upload.
// Encode turns raw bytes into an Attachment; Encoder runs encodes
// asynchronously and keeps only the most recent selection.
package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/image/webp"
)

var (
	ErrEmpty       = errors.New("selected file is empty")
	ErrNotImage    = errors.New("selected file must be a png, jpeg, gif, or webp image")
	ErrUndecodable = errors.New("unable to decode image")
	ErrTooLarge    = errors.New("selected file exceeds the size limit")
	ErrNoFile      = errors.New("no file selected")
)

// ImageMimes lists the image types accepted for avatars.
var ImageMimes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Error is an AttachmentError: a rejected selection. It never reaches the network.
type Error struct {
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Filename == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

// Attachment is an immutable staged file. Preview and Raw always describe
// the same bytes.
type Attachment struct {
	Filename string
	MimeType string
	Raw      []byte
	// Preview is a data URI of Raw.
	Preview string
	Width   int
	Height  int
}

// Size returns len(Raw).
func (a *Attachment) Size() int { return len(a.Raw) }

// Summary is a one-line description for the console preview.
func (a *Attachment) Summary() string {
	if a == nil {
		return "no file selected"
	}
	if a.Width > 0 {
		return fmt.Sprintf("%s (%s, %dx%d, %d bytes)", a.Filename, a.MimeType, a.Width, a.Height, len(a.Raw))
	}
	return fmt.Sprintf("%s (%s, %d bytes)", a.Filename, a.MimeType, len(a.Raw))
}

// Encode validates raw and builds its Attachment. With imageOnly set,
// anything that is not a decodable image is rejected.
func Encode(name string, raw []byte, imageOnly bool) (*Attachment, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if len(raw) == 0 {
		return nil, &Error{Filename: name, Err: ErrEmpty}
	}
	mime := http.DetectContentType(raw)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	a := &Attachment{Filename: name, MimeType: mime, Raw: raw}
	if imageOnly {
		if !isImageMime(mime) {
			return nil, &Error{Filename: name, Err: ErrNotImage}
		}
		img, err := decodeImageWithWebPFallback(raw)
		if err != nil {
			return nil, &Error{Filename: name, Err: ErrUndecodable}
		}
		b := img.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return nil, &Error{Filename: name, Err: ErrUndecodable}
		}
		a.Width, a.Height = b.Dx(), b.Dy()
	}
	a.Preview = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return a, nil
}

// DecodePreview parses a data URI produced by Encode back into bytes.
func DecodePreview(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("invalid data uri prefix")
	}
	comma := strings.IndexByte(uri, ',')
	if comma <= 5 {
		return nil, "", errors.New("invalid data uri payload")
	}
	meta := uri[5:comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", errors.New("data uri must be base64")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, "", err
	}
	return raw, strings.TrimSuffix(meta, ";base64"), nil
}

func isImageMime(m string) bool {
	for _, ok := range ImageMimes {
		if strings.EqualFold(ok, m) {
			return true
		}
	}
	return false
}

func decodeImageWithWebPFallback(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, err
}
