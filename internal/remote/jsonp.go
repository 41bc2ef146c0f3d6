package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"
)

// getJSONP fetches endpoint with a callback parameter and unwraps the
// callback(...) envelope. The web app serves this form even when the plain
// JSON read is refused. The whole exchange is bounded by JSONPTimeout.
func (c *Client) getJSONP(ctx context.Context, endpoint string, params url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, JSONPTimeout)
	defer cancel()

	callback := "chatJsonp_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.FormatInt(rand.Int64N(1<<31), 36)
	withCallback := url.Values{}
	for k, vs := range params {
		withCallback[k] = append([]string(nil), vs...)
	}
	withCallback.Set("callback", callback)

	body, err := c.get(ctx, endpoint, withCallback)
	if err != nil {
		return fmt.Errorf("jsonp: %w", err)
	}
	inner, err := unwrapJSONP(body, callback)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(inner)) == 0 {
		return nil
	}
	if err := json.Unmarshal(inner, v); err != nil {
		return fmt.Errorf("jsonp: decode: %w", err)
	}
	return nil
}

// unwrapJSONP extracts the argument of callback(...) from a script body.
func unwrapJSONP(body []byte, callback string) ([]byte, error) {
	b := bytes.TrimSpace(body)
	b = bytes.TrimPrefix(b, []byte("/**/"))
	b = bytes.TrimSpace(b)
	if !bytes.HasPrefix(b, []byte(callback+"(")) {
		return nil, fmt.Errorf("jsonp: response does not call %s", callback)
	}
	b = bytes.TrimSuffix(b, []byte(";"))
	b = bytes.TrimSpace(b)
	if !bytes.HasSuffix(b, []byte(")")) {
		return nil, fmt.Errorf("jsonp: unterminated callback")
	}
	return b[len(callback)+1 : len(b)-1], nil
}
