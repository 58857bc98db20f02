package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"prep-service/internal/config"
	"prep-service/internal/model"
)

const maxResponseBytes = 8 << 20

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// BackendClient talks to the REST backend that owns preparations, timesheets and schedules.
// Every call forwards the caller's bearer token.
type BackendClient struct {
	baseURL      string
	httpClient   *http.Client
	readAttempts int
	readBackoff  time.Duration
}

func NewBackendClient(cfg *config.Config) *BackendClient {
	return New(cfg.Backend.URL, cfg.Backend.Timeout)
}

func New(baseURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		readAttempts: 2,
		readBackoff:  200 * time.Millisecond,
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	token       string
	body        []byte
	contentType string
}

func (c *BackendClient) ActivePreparation(ctx context.Context, token string) (*model.Preparation, error) {
	var prep *model.Preparation
	err := c.call(ctx, request{method: http.MethodGet, path: "/preparations/user/active", token: token}, &prep)
	return prep, err
}

func (c *BackendClient) GetPreparation(ctx context.Context, token, id string) (*model.Preparation, error) {
	var prep *model.Preparation
	err := c.call(ctx, request{method: http.MethodGet, path: "/preparations/" + url.PathEscape(id), token: token}, &prep)
	if err == nil && prep == nil {
		return nil, &Error{Kind: KindNotFound, Status: http.StatusOK, Message: "preparation not found"}
	}
	return prep, err
}

func (c *BackendClient) StartPreparation(ctx context.Context, token string, input model.StartPreparationInput) (*model.Preparation, error) {
	req, err := jsonRequest(http.MethodPost, "/preparations", token, input)
	if err != nil {
		return nil, err
	}
	var prep *model.Preparation
	return prep, c.call(ctx, req, &prep)
}

// CompleteStep uploads the step evidence as multipart/form-data (step, notes, photo).
func (c *BackendClient) CompleteStep(ctx context.Context, token, preparationID string, sub model.StepSubmission) (*model.Preparation, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("step", string(sub.Step)); err != nil {
		return nil, fmt.Errorf("failed to build step form: %w", err)
	}
	if sub.Notes != "" {
		if err := w.WriteField("notes", sub.Notes); err != nil {
			return nil, fmt.Errorf("failed to build step form: %w", err)
		}
	}

	name := sub.PhotoName
	if name == "" {
		name = string(sub.Step) + ".jpg"
	}
	mimeType := sub.PhotoMimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, name))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build step form: %w", err)
	}
	if _, err := part.Write(sub.Photo); err != nil {
		return nil, fmt.Errorf("failed to build step form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build step form: %w", err)
	}

	var prep *model.Preparation
	err = c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/preparations/" + url.PathEscape(preparationID) + "/step",
		token:       token,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, &prep)
	return prep, err
}

func (c *BackendClient) CompletePreparation(ctx context.Context, token, preparationID, notes string) (*model.Preparation, error) {
	req, err := jsonRequest(http.MethodPost, "/preparations/"+url.PathEscape(preparationID)+"/complete", token, map[string]string{"notes": notes})
	if err != nil {
		return nil, err
	}
	var prep *model.Preparation
	return prep, c.call(ctx, req, &prep)
}

func (c *BackendClient) CancelPreparation(ctx context.Context, token, preparationID, reason string) (*model.Preparation, error) {
	req, err := jsonRequest(http.MethodPost, "/preparations/"+url.PathEscape(preparationID)+"/cancel", token, map[string]string{"reason": reason})
	if err != nil {
		return nil, err
	}
	var prep *model.Preparation
	return prep, c.call(ctx, req, &prep)
}

func (c *BackendClient) UpdateSteps(ctx context.Context, token, preparationID string, edit model.AdminEditRequest) (*model.Preparation, error) {
	req, err := jsonRequest(http.MethodPut, "/admin/preparations/"+url.PathEscape(preparationID)+"/steps", token, edit)
	if err != nil {
		return nil, err
	}
	var prep *model.Preparation
	return prep, c.call(ctx, req, &prep)
}

func (c *BackendClient) GetVehicle(ctx context.Context, token, vehicleID string) (*model.Vehicle, error) {
	var vehicle *model.Vehicle
	err := c.call(ctx, request{method: http.MethodGet, path: "/vehicles/" + url.PathEscape(vehicleID), token: token}, &vehicle)
	if err == nil && vehicle == nil {
		return nil, &Error{Kind: KindNotFound, Status: http.StatusOK, Message: "vehicle not found"}
	}
	return vehicle, err
}

func (c *BackendClient) TodayClockEvents(ctx context.Context, token, agencyID string) (*model.ClockEvents, error) {
	events := &model.ClockEvents{}
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/timesheets/today",
		query:  url.Values{"agencyId": {agencyID}},
		token:  token,
	}, &events)
	if err == nil && events == nil {
		events = &model.ClockEvents{}
	}
	return events, err
}

func (c *BackendClient) SubmitClockEvent(ctx context.Context, token string, input model.ClockEventInput) (*model.ClockEvents, error) {
	req, err := jsonRequest(http.MethodPost, "/timesheets/clock", token, input)
	if err != nil {
		return nil, err
	}
	events := &model.ClockEvents{}
	if err := c.call(ctx, req, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = &model.ClockEvents{}
	}
	return events, nil
}

// TodaySchedule returns nil without error when the worker has no schedule today.
func (c *BackendClient) TodaySchedule(ctx context.Context, token, agencyID string) (*model.ScheduleEntry, error) {
	var entry *model.ScheduleEntry
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/schedules/today",
		query:  url.Values{"agencyId": {agencyID}},
		token:  token,
	}, &entry)
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	return entry, err
}

func jsonRequest(method, path, token string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("failed to encode request: %w", err)
	}
	return request{method: method, path: path, token: token, body: body, contentType: "application/json"}, nil
}

func (c *BackendClient) newRequest(ctx context.Context, r request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + r.path)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	return req, nil
}

// call sends r and decodes the envelope's data into out. Only reads are retried,
// and only on network errors; mutations are retried by the user.
func (c *BackendClient) call(ctx context.Context, r request, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("backend URL is not configured")
	}

	attempts := 1
	if r.method == http.MethodGet && c.readAttempts > 1 {
		attempts = c.readAttempts
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := c.newRequest(ctx, r)
		if err != nil {
			return err
		}
		resp, lastErr = c.httpClient.Do(req)
		if lastErr == nil {
			break
		}
		if attempt == attempts-1 || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt+1) * c.readBackoff):
		}
	}
	if lastErr != nil {
		return &Error{Kind: KindTransient, Message: "backend unreachable", Err: lastErr}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "failed to read backend response", Err: err}
	}

	return decodeEnvelope(resp.StatusCode, body, out)
}

func decodeEnvelope(status int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		kind := kindForStatus(status)
		if status < http.StatusBadRequest {
			kind = KindRejected
		}
		return &Error{Kind: kind, Status: status, Message: "unexpected backend response", Err: err}
	}

	if !env.Success || status >= http.StatusBadRequest {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = http.StatusText(status)
		}
		if message == "" {
			message = "request rejected by backend"
		}
		kind := KindRejected
		if status >= http.StatusBadRequest {
			kind = kindForStatus(status)
		}
		return &Error{Kind: kind, Status: status, Message: message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindRejected, Status: status, Message: "unexpected backend payload", Err: err}
	}
	return nil
}
