package influxdb

import (
	"context"
	"io"
	"net/http"
	"strings"

	http2 "github.com/influxdata/influxdb-client-go/v2/api/http"
)

// WriteParams selects the destination of one write request.
// Empty fields are left out of the query string so the server defaults apply.
type WriteParams struct {
	Database        string
	RetentionPolicy string
	Consistency     string
}

// Write posts lines as one request to /write with nanosecond precision.
//
// A nil error means the server accepted every line. Failures are returned as
// *WriteError; use IsRetryable (or the error's Retryable method) to decide
// whether sending the same lines again can succeed.
func (c *Client) Write(ctx context.Context, params WriteParams, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if !c.IsConnected() {
		return &WriteError{Err: ErrNotConnected}
	}

	u := *c.writeURL
	q := u.Query()
	q.Set("db", params.Database)
	if params.RetentionPolicy != "" {
		q.Set("rp", params.RetentionPolicy)
	}
	if params.Consistency != "" {
		q.Set("consistency", params.Consistency)
	}
	q.Set("precision", "ns")
	u.RawQuery = q.Encode()

	body := strings.Join(lines, "\n") + "\n"

	perr := c.client.HTTPService().DoPostRequest(ctx, u.String(), strings.NewReader(body),
		func(req *http.Request) {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		},
		func(resp *http.Response) error {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.Body.Close()
		},
	)
	if perr == nil {
		return nil
	}
	return newWriteError(perr)
}

// newWriteError converts a client HTTP error into a classified WriteError.
func newWriteError(perr *http2.Error) *WriteError {
	message := perr.Message
	if message == "" && perr.Err != nil {
		message = perr.Err.Error()
	}
	if message == "" {
		message = perr.Code
	}

	return &WriteError{
		StatusCode: perr.StatusCode,
		Message:    message,
		Err:        perr,
		retryable:  classify(perr.StatusCode, message),
	}
}

// Server messages that decide the outcome regardless of status code.
var (
	permanentMessages = []string{
		"partial write: points beyond retention policy dropped",
		"points beyond retention policy",
		"database not found",
		"unable to parse",
		"hinted handoff queue not empty",
		"field type conflict",
		"user is not authorized to write to database",
		"authorization failed",
		"user required",
		"max-values-per-tag limit exceeded",
	}
	retryableMessages = []string{
		"cache-max-memory-size exceeded",
		"engine: cache maximum memory size exceeded",
		"timeout",
	}
)

// classify reports whether a failed write is worth repeating.
//
// Known server messages decide first. Otherwise client errors (bad request,
// authentication, missing database, oversized body) are permanent and
// everything else, including transport failures with no status, is retryable.
func classify(status int, message string) bool {
	msg := strings.ToLower(message)
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}

	switch status {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusRequestEntityTooLarge:
		return false
	default:
		return true
	}
}
