package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const defaultUserAgent = "timetable/1.0"

// Config configures a Client. Nothing is read from ambient state.
type Config struct {
	// BaseURL is the API origin, e.g. "https://mm.dcsm.info".
	BaseURL string
	// WebURL is the origin of the browser timetable used for deep links.
	// Defaults to BaseURL.
	WebURL string
	// HTTPClient is used for all requests. Defaults to a client without
	// timeout; callers bound requests through the context.
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the timetable API. It holds no per-user state, so one
// Client can serve any number of logins.
type Client struct {
	baseURL    string
	webURL     string
	httpClient *http.Client
	userAgent  string
}

func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		webURL:     strings.TrimRight(cfg.WebURL, "/"),
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
	}
	if c.webURL == "" {
		c.webURL = c.baseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	return c
}

// Login exchanges credentials for a bearer token. Any failure (transport,
// non-2xx, an {error} body or a missing token) is reported as an
// authentication error result.
func (c *Client) Login(ctx context.Context, username, password string) model.Result[*oauth2.Token] {
	tok, err := c.login(ctx, username, password)
	if err != nil {
		appLog.Error("login failed", err, "base_url", c.baseURL)
		return model.Fail[*oauth2.Token](model.KindAuthentication, model.MsgInvalidCredentials)
	}
	if !tok.Expiry.IsZero() {
		appLog.Debug("login succeeded", "expires", tok.Expiry)
	} else {
		appLog.Debug("login succeeded")
	}
	return model.Ok(tok)
}

func (c *Client) login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("username", username); err != nil {
		return nil, err
	}
	if err := mw.WriteField("password", password); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach login endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("login returned status: %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("login rejected: %s", out.Error)
	}
	if out.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	return bearerToken(out.Token), nil
}

// bearerToken wraps the raw token. When the server hands out a JWT, its
// exp claim is read (without verifying the signature, which only the
// server can do) so the expiry shows up in logs.
func bearerToken(raw string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	return tok
}

// FetchEvents loads the raw events of one program/semester week.
func (c *Client) FetchEvents(ctx context.Context, token *oauth2.Token, program string, semester, week int) model.Result[[]model.RawEvent] {
	path := fmt.Sprintf("/api/programs/%s/targetgroups/%s/weeks/kw%d/events",
		url.PathEscape(program), url.PathEscape(fmt.Sprintf("%s%d", program, semester)), week)

	var events []model.RawEvent
	if err := c.getJSON(ctx, token, path, &events); err != nil {
		appLog.Error("events fetch failed", err, "program", program, "semester", semester, "week", week)
		return model.Fail[[]model.RawEvent](model.KindFetch, model.MsgNotAuthenticated)
	}
	appLog.Info("events fetched", "program", program, "semester", semester, "week", week, "count", len(events))
	return model.Ok(events)
}

// FetchLecturers loads the full lecturer directory.
func (c *Client) FetchLecturers(ctx context.Context, token *oauth2.Token) model.Result[[]model.Lecturer] {
	var lecturers []model.Lecturer
	if err := c.getJSON(ctx, token, "/api/lecturers", &lecturers); err != nil {
		appLog.Error("lecturers fetch failed", err)
		return model.Fail[[]model.Lecturer](model.KindFetch, model.MsgNotAuthenticated)
	}
	appLog.Info("lecturers fetched", "count", len(lecturers))
	return model.Ok(lecturers)
}

// getJSON performs an authenticated GET and decodes a JSON array into v.
// An object body is the server's {error} shape and is returned as an error.
func (c *Client) getJSON(ctx context.Context, token *oauth2.Token, path string, v any) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("no bearer token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.authorized(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status: %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
			return fmt.Errorf("%s: server error: %s", path, e.Error)
		}
		return fmt.Errorf("%s: unexpected object response", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// authorized returns an HTTP client that sends the bearer token on top of
// the configured client's transport.
func (c *Client) authorized(ctx context.Context, token *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

// WebLink is the browser URL of a program/semester week.
func (c *Client) WebLink(program string, semester, week int) string {
	return fmt.Sprintf("%s/#/programs/%s/targetgroups/%s%d/weeks/kw%d", c.webURL, program, program, semester, week)
}

// EventLink is the browser URL of a single event within its week.
func (c *Client) EventLink(program string, semester, week int, id model.ID) string {
	return c.WebLink(program, semester, week) + "/show/" + url.PathEscape(id.String())
}
