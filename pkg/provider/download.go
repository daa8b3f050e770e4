package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// CDNPropagationWindow is how long a freshly announced artifact URL may
// keep answering 403/404 before the download is given up.
const CDNPropagationWindow = 5 * time.Minute

var cdnPolicy = Policy{Initial: 2 * time.Second, Max: 30 * time.Second, MaxElapsed: CDNPropagationWindow}

// Download streams url into dst. Not-yet-propagated (403/404) and transient
// responses are retried within CDNPropagationWindow.
func Download(ctx context.Context, client *http.Client, url, dst string) (int64, error) {
	return download(ctx, client, url, dst, cdnPolicy)
}

func download(ctx context.Context, client *http.Client, url, dst string, policy Policy) (int64, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	retryable := func(err error) bool {
		pe := AsError(err)
		return pe.Class == ClassTransient || pe.Status == http.StatusForbidden || pe.Status == http.StatusNotFound
	}
	return retryIf(ctx, policy, retryable, func(ctx context.Context) (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, &Error{Class: ClassInvalidInput, Detail: "bad artifact url", Err: err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return 0, &Error{
				Class:  Classify(resp.StatusCode, string(raw)),
				Status: resp.StatusCode,
				Detail: fmt.Sprintf("artifact download failed: %s", ScrubDetail(string(raw))),
			}
		}

		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return 0, &Error{Class: ClassPermanent, Detail: "cannot write artifact", Err: err}
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return n, err
		}
		return n, nil
	})
}
