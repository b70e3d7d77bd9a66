package dfour

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/machinebox/graphql"

	"github.com/schaermu/dfoursync/internal/domain"
)

const (
	csrfCookie    = "csrftoken"
	sessionCookie = "sessionid"
	envPrefix     = "env:"
)

// Session is an authenticated connection to a dfour instance. It is
// created by Client.Login and must be passed to every call that needs
// authentication.
type Session struct {
	client     *Client
	httpClient *http.Client
	gql        *graphql.Client
	base       *url.URL
}

// ResolveCredential returns the value of the named environment variable
// for values of the form "env:NAME", and value unchanged otherwise.
func ResolveCredential(value string) string {
	if name, ok := strings.CutPrefix(value, envPrefix); ok {
		return os.Getenv(name)
	}
	return value
}

func (c *Client) loginURL() string {
	return c.baseURL + "/account/login/"
}

// Login authenticates with the instance's form login and returns the
// resulting session.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	username = ResolveCredential(username)
	password = ResolveCredential(password)
	if username == "" || password == "" {
		return nil, domain.ConfigurationError("logging in to %s requires a username and a password", c.baseURL)
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, domain.ConfigurationError("invalid endpoint %q: %v", c.baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	s := &Session{
		client: c,
		httpClient: &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: c.httpClient.Transport,
			Jar:       jar,
		},
		base: base,
	}
	s.gql = c.newGraphQLClient(s.httpClient)

	// Fetch the login form to obtain the csrf cookie
	if err := s.do(ctx, http.MethodGet, c.loginURL(), nil, nil); err != nil {
		return nil, domain.StorageError(err, "couldn't reach login page of %s", c.baseURL)
	}
	token := s.cookie(csrfCookie)
	if token == "" {
		return nil, domain.StorageError(nil, "couldn't obtain a csrf token from %s", c.baseURL)
	}

	form := url.Values{
		"csrfmiddlewaretoken": {token},
		"username":            {username},
		"password":            {password},
	}
	headers := http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"Referer":      {c.loginURL()},
	}
	if err := s.do(ctx, http.MethodPost, c.loginURL(), strings.NewReader(form.Encode()), headers); err != nil {
		return nil, domain.StorageError(err, "login request to %s failed", c.baseURL)
	}

	if s.cookie(sessionCookie) == "" {
		return nil, domain.StorageError(nil, "couldn't obtain a %s session for user %q", c.baseURL, username)
	}

	c.logger.Debug("logged in", "endpoint", c.baseURL, "username", username)
	return s, nil
}

func (s *Session) cookie(name string) string {
	for _, ck := range s.httpClient.Jar.Cookies(s.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// csrfHeaders returns the headers the service requires on mutating requests.
// The token is read on every call because a login rotates it.
func (s *Session) csrfHeaders() http.Header {
	return http.Header{
		"X-CSRFToken": {s.cookie(csrfCookie)},
		"Referer":     {s.client.loginURL()},
	}
}

func (s *Session) do(ctx context.Context, method, target string, body io.Reader, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// CreateSnapshot creates an empty snapshot in a workspace and returns its pk
func (s *Session) CreateSnapshot(ctx context.Context, title, topic string, bfsNumber int, workspace string) (string, error) {
	// The mutation resolves wshash with the snapshot node prefix.
	input := SnapshotInput{
		Title:     title,
		Topic:     topic,
		BfsNumber: bfsNumber,
		WSHash:    SnapshotID(workspace),
	}

	req := graphql.NewRequest(createSnapshotMutation)
	for k, v := range s.csrfHeaders() {
		req.Header[k] = v
	}

	var resp createSnapshotResponse
	if err := s.client.run(ctx, s.gql, req, map[string]any{"data": input}, &resp); err != nil {
		return "", domain.StorageError(err, "creating snapshot %q on %s failed", title, s.client.baseURL)
	}
	if resp.SnapshotMutation.Snapshot == nil || resp.SnapshotMutation.Snapshot.PK == "" {
		return "", domain.StorageError(nil, "creating snapshot %q on %s returned no pk", title, s.client.baseURL)
	}
	return resp.SnapshotMutation.Snapshot.PK.String(), nil
}

// Upload replaces the data file of snapshot pk with content
func (s *Session) Upload(ctx context.Context, pk, name string, content []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="data_file"; filename="%s-%s.json"`, pk, name)},
		"Content-Type":        {"application/json"},
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	headers := s.csrfHeaders()
	headers.Set("Content-Type", mw.FormDataContentType())

	uploadURL := fmt.Sprintf("%s/api/v1/snapshots/%s/", s.client.baseURL, pk)
	if err := s.do(ctx, http.MethodPatch, uploadURL, &body, headers); err != nil {
		return domain.StorageError(err, "upload of %q to %s failed", name, uploadURL)
	}

	s.client.logger.Debug("uploaded snapshot", "pk", pk, "name", name, "bytes", len(content))
	return nil
}
