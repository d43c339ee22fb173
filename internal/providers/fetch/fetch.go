// Package fetch holds the HTTP plumbing shared by provider adapters.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"multiverse/internal/providers"
)

// MaxBody caps how much of an upstream response is read.
const MaxBody = 32 << 20

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns a client with timeout, or DefaultTimeout when zero.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Do sends req and returns the body of a 2xx response. Other statuses come
// back as *providers.StatusError.
func Do(hc *http.Client, provider string, req *http.Request) ([]byte, http.Header, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: http request: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &providers.StatusError{Provider: provider, Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.Header, nil
}

// PostJSON encodes in, posts it, and decodes the response into out.
func PostJSON(ctx context.Context, hc *http.Client, provider, endpoint string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	raw, _, err := Do(hc, provider, req)
	if err != nil {
		return err
	}
	return Decode(provider, raw, out)
}

// Decode unmarshals raw into out, wrapping failures as ErrMalformed.
func Decode(provider string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %v", provider, providers.ErrMalformed, err)
	}
	return nil
}

// Form builds a multipart body field by field.
type Form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func NewForm() *Form {
	f := &Form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *Form) Field(name, value string) *Form {
	if f.err == nil {
		f.err = f.w.WriteField(name, value)
	}
	return f
}

// File attaches data with an explicit content type so upstreams that check
// the part header accept it.
func (f *Form) File(field, filename, contentType string, data []byte) *Form {
	if f.err != nil {
		return f
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	_, f.err = part.Write(data)
	return f
}

// Request closes the form and builds a POST request carrying it.
func (f *Form) Request(ctx context.Context, endpoint string) (*http.Request, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(f.buf.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", f.w.FormDataContentType())
	return req, nil
}

// Download fetches an image URL produced by an upstream.
func Download(ctx context.Context, hc *http.Client, provider, imageURL string) (providers.Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return providers.Image{}, fmt.Errorf("%s: invalid image url %q: %w", provider, imageURL, providers.ErrMalformed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return providers.Image{}, fmt.Errorf("%s: build download request: %w", provider, err)
	}
	raw, header, err := Do(hc, provider, req)
	if err != nil {
		return providers.Image{}, err
	}
	if len(raw) == 0 {
		return providers.Image{}, fmt.Errorf("%s: downloaded image: %w", provider, providers.ErrEmpty)
	}
	return providers.Image{Data: raw, MIME: SniffMIME(raw, header.Get("Content-Type"))}, nil
}

// SniffMIME detects the payload type, falling back to the declared type and
// then image/png.
func SniffMIME(data []byte, declared string) string {
	if len(data) > 0 {
		if m := mimetype.Detect(data); strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	if declared = strings.TrimSpace(declared); strings.HasPrefix(declared, "image/") {
		if base, _, ok := strings.Cut(declared, ";"); ok {
			return strings.TrimSpace(base)
		}
		return declared
	}
	return "image/png"
}

// Extension returns a file extension for an image MIME type.
func Extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".png"
}
