package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// HTTPSource reads session state from the chat API. It identifies the caller
// with X-User-ID or X-Nutritionist-ID depending on Role.
type HTTPSource struct {
	BaseURL string // e.g. http://localhost:8080/api/v1
	Role    domain.Role
	ActorID string
	Client  *http.Client
}

// NewHTTPSource returns a source with a 10s client timeout.
func NewHTTPSource(baseURL string, role domain.Role, actorID string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Role:    role,
		ActorID: actorID,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("syncclient: http %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("syncclient: http %d", e.Status)
}

func (h *HTTPSource) Session(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	var body struct {
		Session *domain.ChatSession `json:"session"`
	}
	if err := h.get(ctx, "/sessions/"+url.PathEscape(sessionID), nil, &body); err != nil {
		return nil, err
	}
	return body.Session, nil
}

func (h *HTTPSource) Messages(ctx context.Context, sessionID string, afterSeq int64) ([]domain.ChatMessage, error) {
	q := url.Values{}
	if afterSeq > 0 {
		q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	}
	var body struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := h.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/messages", q, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func (h *HTTPSource) Notifications(ctx context.Context) ([]domain.ChatNotification, error) {
	var body struct {
		Notifications []domain.ChatNotification `json:"notifications"`
	}
	if err := h.get(ctx, "/notifications", nil, &body); err != nil {
		return nil, err
	}
	return body.Notifications, nil
}

// PollInterval asks the server how often clients should refresh.
func (h *HTTPSource) PollInterval(ctx context.Context) (time.Duration, error) {
	var body struct {
		PollIntervalSeconds int `json:"poll_interval_seconds"`
	}
	if err := h.get(ctx, "/sync/config", nil, &body); err != nil {
		return 0, err
	}
	if body.PollIntervalSeconds <= 0 {
		return DefaultInterval, nil
	}
	return time.Duration(body.PollIntervalSeconds) * time.Second, nil
}

func (h *HTTPSource) get(ctx context.Context, path string, q url.Values, out any) error {
	u := h.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if h.Role == domain.RoleNutritionist {
		req.Header.Set("X-Nutritionist-ID", h.ActorID)
	} else {
		req.Header.Set("X-User-ID", h.ActorID)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env)
		return &StatusError{Status: resp.StatusCode, Code: env.Code}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
