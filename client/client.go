// Package client is the Go SDK for the messenger API. It wraps the REST
// surface, persists the session, and keeps access tokens fresh through a
// single-flight refresh coordinator so concurrent callers never race
// each other through the auth endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/httputil"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/token"
)

const defaultRequestTimeout = 30 * time.Second

type Client struct {
	baseURL     string
	httpClient  *http.Client
	session     *SessionStore
	coordinator *RefreshCoordinator
	monitor     *ActivityMonitor
}

type Options struct {
	// Store persists the session across restarts. Defaults to an
	// in-memory store.
	Store Store
	// HTTPClient overrides the transport. Defaults to a client with a
	// request timeout.
	HTTPClient *http.Client
	// Monitor configures the session activity monitor.
	Monitor MonitorConfig
	// OnLogout fires when the session ends for any reason other than an
	// explicit Logout call: refresh failure or hard session timeout.
	OnLogout func(err error)
}

func New(baseURL string, opts Options) *Client {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		session:    NewSessionStore(opts.Store),
	}
	c.coordinator = NewRefreshCoordinator(c.session, c.refreshTokens, opts.OnLogout)

	if opts.Monitor.OnExpired == nil && opts.OnLogout != nil {
		onLogout := opts.OnLogout
		opts.Monitor.OnExpired = func() {
			onLogout(apperrors.Fatal("Session reached hard timeout"))
		}
	}
	c.monitor = NewActivityMonitor(c.session, c.coordinator, opts.Monitor)

	return c
}

// Session exposes the session store, mainly so embedders can read the
// current user.
func (c *Client) Session() *SessionStore {
	return c.session
}

// Monitor exposes the activity monitor for Touch and ExtendSession.
func (c *Client) Monitor() *ActivityMonitor {
	return c.monitor
}

// StartMonitor begins session supervision. Call after a successful
// Login or Restore.
func (c *Client) StartMonitor() {
	c.monitor.Start()
}

func (c *Client) StopMonitor() {
	c.monitor.Stop()
}

type authResponse struct {
	User   model.PublicUser `json:"user"`
	Tokens token.Pair       `json:"tokens"`
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*model.PublicUser, error) {
	var resp authResponse
	err := c.doPublic(ctx, http.MethodPost, "/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.session.SetSession(resp.Tokens, resp.User)
	return &resp.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*model.PublicUser, error) {
	var resp authResponse
	err := c.doPublic(ctx, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.session.SetSession(resp.Tokens, resp.User)
	return &resp.User, nil
}

// Logout ends the session on the server, then locally. Local state is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
	c.monitor.Stop()
	c.session.Clear()
	return err
}

// refreshTokens is the RefreshFunc wired into the coordinator. It talks
// to the auth endpoint directly, outside the authenticated request path.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (*token.Pair, error) {
	var resp struct {
		Tokens token.Pair `json:"tokens"`
	}
	err := c.doPublic(ctx, http.MethodPost, "/v1/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Tokens, nil
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var resp struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *Client) CreateDirectConversation(ctx context.Context, participantID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodPost, "/v1/conversations/direct", map[string]string{
		"participantId": participantID,
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*model.DeliveredMessage, error) {
	var msg model.DeliveredMessage
	err := c.do(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/messages", map[string]string{
		"content": content,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	var resp struct {
		Messages []model.Message `json:"messages"`
	}
	path := fmt.Sprintf("/v1/conversations/%s/messages?limit=%d&offset=%d", conversationID, limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/read", nil, nil)
}

// do issues an authenticated request. On a 401 it performs exactly one
// coordinated refresh and retries; a second 401 means the session is
// beyond repair and is ended.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.monitor.Touch()

	accessToken := c.session.AccessToken()
	if accessToken == "" {
		return apperrors.Unauthenticated("Not logged in")
	}

	err := c.doOnce(ctx, method, path, body, out, accessToken)
	if err == nil {
		return nil
	}

	code := apperrors.GetCode(err)
	if code != apperrors.ErrCodeTokenExpired && code != apperrors.ErrCodeUnauthenticated {
		return err
	}

	pair, refreshErr := c.coordinator.Refresh(ctx)
	if refreshErr != nil {
		return refreshErr
	}

	err = c.doOnce(ctx, method, path, body, out, pair.AccessToken)
	if err == nil {
		return nil
	}

	code = apperrors.GetCode(err)
	if code == apperrors.ErrCodeTokenExpired || code == apperrors.ErrCodeUnauthenticated {
		// A freshly refreshed token was still rejected. Nothing the
		// client can do will fix that.
		fatal := apperrors.Fatal("Authentication failed after token refresh")
		c.coordinator.fail(fatal)
		return fatal
	}
	return err
}

// doPublic issues a request without a bearer token: register, login,
// refresh.
func (c *Client) doPublic(ctx context.Context, method, path string, body, out any) error {
	return c.doOnce(ctx, method, path, body, out, "")
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, accessToken string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.InvalidArgument("body", err.Error())
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperrors.InvalidArgument("request", err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient("Request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Malformed response body", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		if resp.StatusCode >= 500 {
			return apperrors.Transient(fmt.Sprintf("Server error (%d)", resp.StatusCode), nil)
		}
		return apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("Request failed (%d)", resp.StatusCode))
	}
	return apperrors.New(body.Code, body.Error)
}
