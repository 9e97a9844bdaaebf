package jade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// pinServerHTTPClient performs the two HTTP round trips of spec §4.J's
// PIN-server handshake. The wire format here is JSON (the pin-server
// speaks JSON, unlike the CBOR device transport), grounded on
// original_source/lwk_jade/src/unlock.rs's use of minreq+serde_json.
var pinServerHTTPClient = &http.Client{}

// postJSON POSTs data (JSON-encoded, or an empty body if data is nil) to
// the first of urls, per spec §4.J's "the client picks the first URL and
// performs an HTTPS POST of the payload." The response body is returned
// raw for the caller to decode with encoding/json against a params struct
// tagged with the expected JSON field names.
func postJSON(ctx context.Context, urls []string, data any) ([]byte, error) {
	if len(urls) == 0 {
		return nil, newError(KindNoUsableURL, "auth response carried no urls")
	}
	url := urls[0]

	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("jade: encode pin-server request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("jade: build pin-server request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pinServerHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jade: pin-server request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jade: read pin-server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError(KindHTTPStatus, fmt.Sprintf("%s returned %d", url, resp.StatusCode))
	}
	return respBody, nil
}
