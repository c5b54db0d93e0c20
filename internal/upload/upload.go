// Package upload decodes multipart/form-data request bodies. Form fields are
// collected in memory and file parts are streamed straight to temporary
// storage, so an upload is never buffered whole.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/maauso/vertical-converter/internal/storage"
)

// Static errors for multipart decoding.
var (
	// ErrNotMultipart is returned when the content type is not multipart.
	ErrNotMultipart = errors.New("expecting multipart/form-data")
	// ErrMissingBoundary is returned when the content type has no boundary parameter.
	ErrMissingBoundary = errors.New("multipart boundary not found in content type")
	// ErrFieldTooLarge is returned when a non-file field exceeds MaxFieldBytes.
	ErrFieldTooLarge = errors.New("form field too large")
	// ErrUnexpectedEnd is returned when the body ends before the closing boundary.
	ErrUnexpectedEnd = errors.New("unexpected end of form")
)

// MaxFieldBytes caps the size of a single non-file form field.
const MaxFieldBytes = 1 << 20

// File is an uploaded file part staged on disk.
type File struct {
	// Path is the temporary file holding the part content.
	Path string
	// Filename is the client-supplied filename.
	Filename string
	// FieldName is the form field the part was sent under.
	FieldName string
	// Size is the number of bytes written.
	Size int64
}

// Form is a decoded multipart body.
type Form struct {
	// Fields maps field name to value; a repeated field keeps its last value.
	Fields map[string]string
	// Files holds file parts in the order they appeared.
	Files []File
}

// Paths returns the temporary paths of every staged file.
func (f *Form) Paths() []string {
	paths := make([]string, 0, len(f.Files))
	for _, file := range f.Files {
		paths = append(paths, file.Path)
	}
	return paths
}

// TransferDecoder wraps body with a decoder for the declared transfer
// encoding. Only "base64" is recognized; anything else returns body as is.
func TransferDecoder(body io.Reader, transferEncoding string) io.Reader {
	if strings.EqualFold(strings.TrimSpace(transferEncoding), "base64") {
		return base64.NewDecoder(base64.StdEncoding, body)
	}
	return body
}

// Decode parses a multipart body. File parts are written through store.
// When Decode fails, every file it already wrote is removed.
func Decode(ctx context.Context, store storage.Storage, body io.Reader, contentType string) (*Form, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: got %s", ErrNotMultipart, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	form := &Form{Fields: make(map[string]string)}
	counted := &countingReader{r: body}
	mr := multipart.NewReader(counted, boundary)

	for {
		part, err := mr.NextPart()
		// A bare io.EOF follows the closing boundary; an empty body has none.
		if err == io.EOF && counted.n > 0 { //nolint:errorlint
			break
		}
		if errors.Is(err, io.EOF) {
			discard(store, form)
			return nil, fmt.Errorf("read multipart: %w", ErrUnexpectedEnd)
		}
		if err != nil {
			discard(store, form)
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		if err := decodePart(ctx, store, form, part); err != nil {
			_ = part.Close()
			discard(store, form)
			return nil, err
		}
		_ = part.Close()
	}

	return form, nil
}

// decodePart stores one part into form.
func decodePart(ctx context.Context, store storage.Storage, form *Form, part *multipart.Part) error {
	name := part.FormName()
	filename := part.FileName()

	if filename == "" {
		if name == "" {
			return nil
		}
		value, err := io.ReadAll(io.LimitReader(part, MaxFieldBytes+1))
		if err != nil {
			return fmt.Errorf("read field %s: %w", name, err)
		}
		if len(value) > MaxFieldBytes {
			return fmt.Errorf("%w: %s", ErrFieldTooLarge, name)
		}
		form.Fields[name] = string(value)
		return nil
	}

	counter := &countingReader{r: part}
	path, err := store.SaveTemp(ctx, filename, counter)
	if err != nil {
		return fmt.Errorf("save file %s: %w", filename, err)
	}

	form.Files = append(form.Files, File{
		Path:      path,
		Filename:  filename,
		FieldName: name,
		Size:      counter.n,
	})
	return nil
}

// discard removes staged files after a failed decode.
func discard(store storage.Storage, form *Form) {
	if len(form.Files) == 0 {
		return
	}
	_ = store.CleanupTemp(context.Background(), form.Paths())
	form.Files = nil
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
