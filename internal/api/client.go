// Package api is the HTTP client for the remote attendance service. The
// service is an external collaborator consumed as a black box: this package
// only knows the reconciliation endpoint and the event listing.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/campuspass/eventlog/internal/model"
	"github.com/campuspass/eventlog/internal/normalize"
)

// DefaultTimeout bounds every remote call, sync included, so a slow server
// cannot stall a tick indefinitely.
const DefaultTimeout = 10 * time.Second

// SyncResult is the per-batch reconciliation outcome reported by the server.
// A batch can succeed overall while individual rows fail.
type SyncResult struct {
	SyncedCount   int            `json:"synced_count"`
	FailedCount   int            `json:"failed_count"`
	FailedRecords []FailedRecord `json:"failed_records"`
}

// FailedRecord identifies one row the server could not reconcile.
type FailedRecord struct {
	EventDateID     int64  `json:"event_date_id"`
	StudentIDNumber string `json:"student_id_number"`
	Reason          string `json:"reason"`
}

type syncRequest struct {
	AttendanceData []normalize.WireAttendance `json:"attendanceData"`
}

// envelope is the common response wrapper: {success, message, data}.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// remoteEvent is the slice of the event listing this subsystem needs: the
// identity plus the date strings that drive the purge guard.
type remoteEvent struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Venue       string   `json:"venue"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	ApprovedBy  *string  `json:"approved_by"`
	AmIn        *string  `json:"am_in"`
	AmOut       *string  `json:"am_out"`
	PmIn        *string  `json:"pm_in"`
	PmOut       *string  `json:"pm_out"`
	Duration    int64    `json:"duration"`
	Dates       []string `json:"dates"`
}

// Client talks to the remote attendance service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a Client for the service at baseURL (no trailing slash).
// A non-positive timeout falls back to DefaultTimeout. If logger is nil, a
// default logger writing to stderr is used.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SyncAttendance posts the whole batch to the reconciliation endpoint in one
// request. Transport errors, non-2xx statuses and success:false bodies all
// come back as errors; the caller decides what that means for local data.
func (c *Client) SyncAttendance(ctx context.Context, batch []normalize.WireAttendance) (*SyncResult, error) {
	body, err := json.Marshal(syncRequest{AttendanceData: batch})
	if err != nil {
		return nil, fmt.Errorf("error encoding sync request: %w", err)
	}
	c.logger.Printf("posting %d attendance rows", len(batch))

	env, err := c.post(ctx, "/api/attendance/sync", body)
	if err != nil {
		return nil, err
	}

	var result SyncResult
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result); err != nil {
			return nil, fmt.Errorf("error decoding sync result: %w", err)
		}
	}
	return &result, nil
}

// ListEvents fetches the remote event listing used to refresh the local
// event cache.
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	env, err := c.get(ctx, "/api/events")
	if err != nil {
		return nil, err
	}

	var remote []remoteEvent
	if err := json.Unmarshal(env.Data, &remote); err != nil {
		return nil, fmt.Errorf("error decoding event listing: %w", err)
	}

	events := make([]model.Event, 0, len(remote))
	for _, re := range remote {
		ev := model.Event{
			ID:          re.ID,
			Name:        re.Name,
			Venue:       re.Venue,
			Description: re.Description,
			Status:      re.Status,
			CreatedBy:   re.CreatedBy,
			ApprovedBy:  re.ApprovedBy,
			AmIn:        re.AmIn,
			AmOut:       re.AmOut,
			PmIn:        re.PmIn,
			PmOut:       re.PmOut,
			Duration:    re.Duration,
		}
		for _, d := range re.Dates {
			ev.Dates = append(ev.Dates, model.EventDate{EventID: re.ID, Date: d})
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("error decoding response from %s: %w", req.URL.Path, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%s reported failure: %s", req.URL.Path, env.Message)
	}
	return &env, nil
}
