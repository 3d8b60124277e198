package fetchz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTransport fetches resources from an HTTP API. A resource key is a path
// relative to the base URL.
type HTTPTransport struct {
	baseURL     string
	client      *http.Client
	contentType string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient sets the client used to send requests.
// Default: http.DefaultClient.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithContentType sets the media type sent as Accept and, for requests with
// a body, as Content-Type. Use the ContentType of the executor's codec.
// Default: application/json.
func WithContentType(contentType string) HTTPOption {
	return func(t *HTTPTransport) {
		t.contentType = contentType
	}
}

// NewHTTPTransport creates a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      http.DefaultClient,
		contentType: JSONCodec{}.ContentType(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send issues the request for key and returns the response body.
//
// The method defaults to GET. Headers in opts take precedence over the
// default Accept and Content-Type headers. A response outside the 2xx range
// fails with StatusError; a request that never produced a response fails
// with NetworkError.
func (t *HTTPTransport) Send(ctx context.Context, key string, opts CallOptions) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.URL(key), body)
	if err != nil {
		return nil, NetworkError(fmt.Errorf("failed to build request: %w", err))
	}

	req.Header.Set("Accept", t.contentType)
	if opts.Body != nil {
		req.Header.Set("Content-Type", t.contentType)
	}
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Draining for connection reuse
		return nil, StatusError(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NetworkError(fmt.Errorf("failed to read response: %w", err))
	}
	return data, nil
}

// URL returns the absolute URL requested for key.
func (t *HTTPTransport) URL(key string) string {
	return t.baseURL + "/" + strings.TrimLeft(key, "/")
}

// Ensure HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)
