package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-engage/internal/httpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// client talks to an engaged server.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: httpc.New(httpc.DefaultOptions()),
	}
}

// call sends body as JSON and decodes the reply into out.
func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) createSession(ctx context.Context, contextName string) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.call(ctx, http.MethodPost, "/api/sessions", map[string]string{"context": contextName}, &resp)
	return resp.SessionID, err
}

func (c *client) analyze(ctx context.Context, id string, jpeg []byte) (frameResult, error) {
	var res frameResult
	body := map[string]string{"image": base64.StdEncoding.EncodeToString(jpeg)}
	err := c.call(ctx, http.MethodPost, "/api/sessions/"+id+"/analyze", body, &res)
	return res, err
}

func (c *client) addSample(ctx context.Context, id string, groundTruth float64) error {
	body := map[string]float64{"ground_truth": groundTruth}
	return c.call(ctx, http.MethodPost, "/api/sessions/"+id+"/samples", body, nil)
}

func (c *client) closeSession(ctx context.Context, id string) (summary, error) {
	var s summary
	err := c.call(ctx, http.MethodDelete, "/api/sessions/"+id, nil, &s)
	return s, err
}

// stream dials the session's result stream.
func (c *client) stream(ctx context.Context, id string) (*websocket.Conn, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/sessions/" + id

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}

// frameResult is the subset of the analyze response the probe prints.
type frameResult struct {
	Frame             int     `json:"frame"`
	EngagementScore   float64 `json:"engagement_score"`
	Level             string  `json:"level"`
	Trend             string  `json:"trend"`
	FaceDetected      bool    `json:"face_detected"`
	NeedsIntervention bool    `json:"needs_intervention"`
}

type summary struct {
	Frames       int     `json:"total_frames"`
	AverageScore float64 `json:"average_engagement"`
	Level        string  `json:"level"`
	TotalBlinks  int     `json:"total_blinks"`
	Duration     float64 `json:"session_duration_seconds"`
}
