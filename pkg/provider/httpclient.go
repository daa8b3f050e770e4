package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient is the shared transport of the JSON adapters: auth headers,
// token-bucket pacing, classification of failures and bounded retries.
type HTTPClient struct {
	name    string
	baseURL string
	header  http.Header
	http    *http.Client
	limiter *rate.Limiter
	policy  Policy
}

type ClientOption func(*HTTPClient)

func WithBearer(token string) ClientOption {
	return func(c *HTTPClient) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		if value != "" {
			c.header.Set(key, value)
		}
	}
}

// WithRate paces requests to perSecond with the given burst.
func WithRate(perSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithPolicy(p Policy) ClientOption {
	return func(c *HTTPClient) { c.policy = p }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = h }
}

func NewHTTPClient(name, baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  http.Header{},
		http:    &http.Client{Timeout: 90 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		policy:  DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Name() string { return c.name }

// JSON sends in (when non-nil) as a JSON body and decodes the response into
// out (when non-nil).
func (c *HTTPClient) JSON(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return &Error{Class: ClassInvalidInput, Detail: "cannot encode request", Err: err}
		}
	}
	raw, _, err := c.send(ctx, method, path, func() (io.Reader, string, error) {
		if payload == nil {
			return nil, "", nil
		}
		return bytes.NewReader(payload), "application/json", nil
	})
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Class: ClassPermanent, Detail: fmt.Sprintf("%s returned an unreadable response", c.name), Err: err}
		}
	}
	return nil
}

// Bytes is JSON for endpoints that answer with a binary body.
func (c *HTTPClient) Bytes(ctx context.Context, method, path string, in interface{}) ([]byte, string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, "", &Error{Class: ClassInvalidInput, Detail: "cannot encode request", Err: err}
	}
	return c.send(ctx, method, path, func() (io.Reader, string, error) {
		return bytes.NewReader(payload), "application/json", nil
	})
}

// Multipart uploads filePath as fileField together with fields.
func (c *HTTPClient) Multipart(ctx context.Context, path string, fields map[string]string, fileField, filePath string, out interface{}) error {
	raw, _, err := c.send(ctx, http.MethodPost, path, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
		if filePath != "" {
			f, err := os.Open(filePath)
			if err != nil {
				return nil, "", err
			}
			defer f.Close()
			part, err := mw.CreateFormFile(fileField, filepath.Base(filePath))
			if err != nil {
				return nil, "", err
			}
			if _, err := io.Copy(part, f); err != nil {
				return nil, "", err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	})
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Class: ClassPermanent, Detail: fmt.Sprintf("%s returned an unreadable response", c.name), Err: err}
		}
	}
	return nil
}

type bodyFunc func() (io.Reader, string, error)

func (c *HTTPClient) send(ctx context.Context, method, path string, body bodyFunc) ([]byte, string, error) {
	type result struct {
		raw         []byte
		contentType string
	}
	res, err := Retry(ctx, c.policy, func(ctx context.Context) (result, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return result{}, err
		}
		reader, contentType, err := body()
		if err != nil {
			return result{}, &Error{Class: ClassInvalidInput, Detail: "cannot build request", Err: err}
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
		if err != nil {
			return result{}, &Error{Class: ClassPermanent, Detail: "cannot build request", Err: err}
		}
		for k, v := range c.header {
			req.Header[k] = v
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return result{}, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return result{}, &Error{
				Class:  Classify(resp.StatusCode, string(raw)),
				Status: resp.StatusCode,
				Detail: ScrubDetail(string(raw)),
			}
		}
		return result{raw: raw, contentType: resp.Header.Get("Content-Type")}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return res.raw, res.contentType, nil
}

func (c *HTTPClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
