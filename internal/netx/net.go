// Package netx contains small HTTP helpers shared by client transports.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrStatus is returned when the server answers with a non-2xx status.
type ErrStatus struct {
	Code int
	Body string
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("unexpected status %d; body: %s", e.Code, e.Body)
}

// DoJSON sends body (if non-nil) as JSON with the given method and returns
// an *ErrStatus for any non-2xx response. The response body is discarded.
func DoJSON(ctx context.Context, client *http.Client, method, url string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ErrStatus{Code: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
