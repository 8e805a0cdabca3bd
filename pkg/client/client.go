package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/your-org/attendsense/pkg/dto"
)

// APIError is a non-2xx answer from the fog API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fog api: %d %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to the fog node's HTTP API.
type Client struct {
	http *resty.Client
}

func New(baseURL string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: http}
}

// PostSighting submits one sighting. A resent sighting is answered as a
// duplicate, so retries are safe.
func (c *Client) PostSighting(ctx context.Context, req dto.SightingRequest) (dto.SightingResponse, error) {
	var out dto.SightingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/v1/sightings")
	if err := check(resp, err); err != nil {
		return out, fmt.Errorf("post sighting: %w", err)
	}
	return out, nil
}

func (c *Client) PostHeartbeat(ctx context.Context, req dto.HeartbeatRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&errorBody{}).
		Post("/v1/devices/heartbeat")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("post heartbeat: %w", err)
	}
	return nil
}

func (c *Client) ListAttendance(ctx context.Context) ([]dto.PresenceResponse, error) {
	var out []dto.PresenceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/v1/attendance")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return out, nil
}

func (c *Client) ListDevices(ctx context.Context) ([]dto.DeviceResponse, error) {
	var out []dto.DeviceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/v1/devices")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

// EventQuery mirrors the filters of GET /v1/events. Zero values are omitted.
type EventQuery struct {
	PersonID string
	CameraID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

func (q EventQuery) values() url.Values {
	v := url.Values{}
	if q.PersonID != "" {
		v.Set("person_id", q.PersonID)
	}
	if q.CameraID != "" {
		v.Set("camera_id", q.CameraID)
	}
	if !q.From.IsZero() {
		v.Set("from", dto.FormatTime(q.From))
	}
	if !q.To.IsZero() {
		v.Set("to", dto.FormatTime(q.To))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func (c *Client) ListEvents(ctx context.Context, q EventQuery) (dto.EventListResponse, error) {
	var out dto.EventListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q.values()).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/v1/events")
	if err := check(resp, err); err != nil {
		return out, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// ExportAttendance downloads the XLSX roster with events since the given time.
func (c *Client) ExportAttendance(ctx context.Context, since time.Time) ([]byte, error) {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if !since.IsZero() {
		req.SetQueryParam("since", dto.FormatTime(since))
	}
	resp, err := req.Get("/v1/attendance/export")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("export attendance: %w", err)
	}
	return resp.Body(), nil
}

// ArchiveReport asks the fog node to archive a report now and returns its key.
func (c *Client) ArchiveReport(ctx context.Context) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/v1/reports")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return out.Key, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}
