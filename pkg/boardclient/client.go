// Package boardclient talks to the crmboard API. It implements the remote
// side of the kanban sync library: Backend, SnapshotWriter and Feed.
package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	authdomain "crmboard/internal/auth/domain"
	authdto "crmboard/internal/auth/dto"
	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
	"crmboard/internal/kanban"

	"github.com/rs/zerolog"
)

var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx answer of the API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l.With().Str("component", "boardclient").Logger() }
}

// New creates a client for the API at baseURL (e.g. http://localhost:8080)
func New(baseURL string, session *Session, opts ...Option) *Client {
	if session == nil {
		session = NewSession()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ kanban.Backend        = (*Client)(nil)
	_ kanban.SnapshotWriter = (*Client)(nil)
)

func (c *Client) Session() *Session { return c.session }

func (c *Client) BaseURL() string { return c.baseURL }

// do sends a JSON request. Authenticated calls retry once after refreshing an expired access token.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, auth bool) error {
	err := c.send(ctx, method, path, in, out, auth)
	if auth && IsStatus(err, http.StatusUnauthorized) && c.session.RefreshToken() != "" {
		if rerr := c.Refresh(ctx); rerr != nil {
			return err
		}
		err = c.send(ctx, method, path, in, out, auth)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, in, out interface{}, auth bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.session.AccessToken()
		if token == "" {
			return ErrNotSignedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(respBody))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Login signs in and stores the tokens in the session
func (c *Client) Login(ctx context.Context, email, password string) (*authdto.TokenResponse, error) {
	var resp authdto.TokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/login", authdto.LoginRequest{Email: email, Password: password}, &resp, false); err != nil {
		return nil, err
	}
	c.session.Set(&resp)
	return &resp, nil
}

// Register creates a company account with the caller as admin
func (c *Client) Register(ctx context.Context, req authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	var resp authdto.TokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/register", req, &resp, false); err != nil {
		return nil, err
	}
	c.session.Set(&resp)
	return &resp, nil
}

// Refresh trades the refresh token for a new token pair. A rejected token signs the session out.
func (c *Client) Refresh(ctx context.Context) error {
	var resp authdto.TokenResponse
	err := c.send(ctx, http.MethodPost, "/api/auth/refresh", authdto.RefreshTokenRequest{RefreshToken: c.session.RefreshToken()}, &resp, false)
	if IsStatus(err, http.StatusUnauthorized) {
		c.session.Clear()
		return err
	}
	if err != nil {
		return err
	}
	c.session.Set(&resp)
	return nil
}

// Logout revokes the refresh token and clears the session
func (c *Client) Logout(ctx context.Context) error {
	token := c.session.RefreshToken()
	c.session.Clear()
	if token == "" {
		return nil
	}
	return c.send(ctx, http.MethodPost, "/api/auth/logout", authdto.RefreshTokenRequest{RefreshToken: token}, nil, false)
}

func (c *Client) Me(ctx context.Context) (*authdomain.User, error) {
	var user authdomain.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

func boardPath(tenantID string, boardType domain.BoardType, rest string) string {
	return "/api/tenants/" + url.PathEscape(tenantID) + "/boards/" + url.PathEscape(string(boardType)) + rest
}

// GetBoard fetches stages and cards in one call
func (c *Client) GetBoard(ctx context.Context, tenantID string, boardType domain.BoardType) (*dto.BoardRows, error) {
	var rows dto.BoardRows
	if err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, ""), nil, &rows, true); err != nil {
		return nil, err
	}
	return &rows, nil
}

func (c *Client) ListStages(ctx context.Context, tenantID string, boardType domain.BoardType) ([]dto.StageRow, error) {
	var rows []dto.StageRow
	err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, "/stages"), nil, &rows, true)
	return rows, err
}

func (c *Client) ListCards(ctx context.Context, tenantID string, boardType domain.BoardType) ([]dto.CardRow, error) {
	var rows []dto.CardRow
	err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, "/cards"), nil, &rows, true)
	return rows, err
}

func (c *Client) CreateStage(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.StageInput) (dto.StageRow, error) {
	var row dto.StageRow
	err := c.do(ctx, http.MethodPost, boardPath(tenantID, boardType, "/stages"), in, &row, true)
	return row, err
}

func (c *Client) UpdateStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string, patch dto.StagePatch) (dto.StageRow, error) {
	var row dto.StageRow
	err := c.do(ctx, http.MethodPatch, boardPath(tenantID, boardType, "/stages/"+url.PathEscape(stageID)), patch, &row, true)
	return row, err
}

func (c *Client) ReorderStages(ctx context.Context, tenantID string, boardType domain.BoardType, orders map[string]int) ([]dto.StageRow, error) {
	var rows []dto.StageRow
	err := c.do(ctx, http.MethodPut, boardPath(tenantID, boardType, "/stages/orders"), dto.ReorderRequest{Orders: orders}, &rows, true)
	return rows, err
}

func (c *Client) DeleteStage(ctx context.Context, tenantID string, boardType domain.BoardType, stageID string) error {
	return c.do(ctx, http.MethodDelete, boardPath(tenantID, boardType, "/stages/"+url.PathEscape(stageID)), nil, nil, true)
}

func (c *Client) CreateCard(ctx context.Context, tenantID string, boardType domain.BoardType, in dto.CardInput) (dto.CardRow, error) {
	var row dto.CardRow
	err := c.do(ctx, http.MethodPost, boardPath(tenantID, boardType, "/cards"), in, &row, true)
	return row, err
}

func (c *Client) UpdateCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string, patch dto.CardPatch) (dto.CardRow, error) {
	var row dto.CardRow
	err := c.do(ctx, http.MethodPatch, boardPath(tenantID, boardType, "/cards/"+url.PathEscape(cardID)), patch, &row, true)
	return row, err
}

func (c *Client) MoveCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID, toStageID string) (dto.CardRow, error) {
	var row dto.CardRow
	err := c.do(ctx, http.MethodPost, boardPath(tenantID, boardType, "/cards/"+url.PathEscape(cardID)+"/move"), dto.MoveRequest{ToStageID: toStageID}, &row, true)
	return row, err
}

func (c *Client) DeleteCard(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) error {
	return c.do(ctx, http.MethodDelete, boardPath(tenantID, boardType, "/cards/"+url.PathEscape(cardID)), nil, nil, true)
}

func (c *Client) CardHistory(ctx context.Context, tenantID string, boardType domain.BoardType, cardID string) ([]domain.CardHistory, error) {
	var history []domain.CardHistory
	err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, "/cards/"+url.PathEscape(cardID)+"/history"), nil, &history, true)
	return history, err
}

// SearchResult is one ranked card of a search
type SearchResult struct {
	Card  dto.CardRow `json:"card"`
	Score float64     `json:"score"`
}

func (c *Client) SearchCards(ctx context.Context, tenantID string, boardType domain.BoardType, query string, limit int) ([]SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, "/cards/search?"+q.Encode()), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetSnapshot returns the caller's saved arrangement, nil when none exists
func (c *Client) GetSnapshot(ctx context.Context, tenantID string, boardType domain.BoardType) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodGet, boardPath(tenantID, boardType, "/snapshot"), nil, &snap, true)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot implements kanban.SnapshotWriter. The user is taken from the access token.
func (c *Client) SaveSnapshot(ctx context.Context, key domain.SnapshotKey, columns domain.Columns) error {
	return c.do(ctx, http.MethodPut, boardPath(key.TenantID, key.BoardType, "/snapshot"), dto.SnapshotRequest{Columns: columns}, nil, true)
}
