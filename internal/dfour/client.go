package dfour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/domain"
)

// DefaultEndpoint is the public sandbox instance
const DefaultEndpoint = "https://sandbox.dfour.space"

const defaultTimeout = 30 * time.Second

// Service is the part of the dfour API used by the workspace sync
type Service interface {
	// Endpoint returns the base URL of the instance
	Endpoint() string
	// Workspace lists all snapshots of a workspace including their data
	Workspace(ctx context.Context, workspace string) (*Workspace, error)
	// LastModified returns the Last-Modified time of a snapshot's raw data file
	LastModified(ctx context.Context, datafile string) (time.Time, error)
	// ReadPackage fetches the package of a snapshot
	ReadPackage(ctx context.Context, snapshot string) (datapackage.Descriptor, error)
	// WritePackage uploads a package according to cfg and returns its pk
	WritePackage(ctx context.Context, cfg StorageConfig, pkg datapackage.Descriptor) (string, error)
}

// Client talks to one dfour instance
type Client struct {
	baseURL    string
	httpClient *http.Client
	gql        *graphql.Client
	logger     *slog.Logger
}

// NewClient creates a client for the instance at baseURL. A zero timeout
// selects the default.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	c.gql = c.newGraphQLClient(httpClient)
	return c
}

func (c *Client) newGraphQLClient(httpClient *http.Client) *graphql.Client {
	gql := graphql.NewClient(c.GraphQLURL(), graphql.WithHTTPClient(httpClient))
	gql.Log = func(s string) {
		c.logger.Debug("graphql", "msg", s)
	}
	return gql
}

// Endpoint returns the base URL of the instance
func (c *Client) Endpoint() string {
	return c.baseURL
}

// GraphQLURL returns the GraphQL endpoint of the instance
func (c *Client) GraphQLURL() string {
	return c.baseURL + "/graphql/"
}

// MediaURL returns the URL of a raw data file
func (c *Client) MediaURL(datafile string) string {
	return c.baseURL + "/media/" + strings.TrimLeft(datafile, "/")
}

// run executes a GraphQL request and maps failures to remote query errors
// naming the endpoint and parameters.
func (c *Client) run(ctx context.Context, gql *graphql.Client, req *graphql.Request, params map[string]any, resp any) error {
	for k, v := range params {
		req.Var(k, v)
	}

	c.logger.Debug("graphql request", "endpoint", c.GraphQLURL(), "params", params)
	if err := gql.Run(ctx, req, resp); err != nil {
		return queryError(err, "GraphQL API query for %s failed (params: %v)", c.GraphQLURL(), params)
	}
	return nil
}

// Workspace lists all snapshots of a workspace. A workspace that does not
// exist is an error; an existing one without snapshots is not.
func (c *Client) Workspace(ctx context.Context, workspace string) (*Workspace, error) {
	params := map[string]any{"wshash": WorkspaceID(workspace)}

	var resp workspaceResponse
	if err := c.run(ctx, c.gql, graphql.NewRequest(snapshotsInWorkspaceQuery), params, &resp); err != nil {
		return nil, err
	}
	if resp.Workspace == nil {
		return nil, domain.RemoteQueryError(nil, "workspace %q not found on %s (params: %v)", workspace, c.GraphQLURL(), params)
	}
	return resp.Workspace, nil
}

// SnapshotRefs lists pk and title of every snapshot in a workspace
func (c *Client) SnapshotRefs(ctx context.Context, workspace string) ([]SnapshotRef, error) {
	params := map[string]any{"wshash": WorkspaceID(workspace)}

	var resp snapshotTitlesResponse
	if err := c.run(ctx, c.gql, graphql.NewRequest(snapshotTitlesQuery), params, &resp); err != nil {
		return nil, err
	}
	if resp.Workspace == nil {
		return nil, domain.RemoteQueryError(nil, "workspace %q not found on %s (params: %v)", workspace, c.GraphQLURL(), params)
	}
	return resp.Workspace.Snapshots, nil
}

// Snapshot fetches the package data of a snapshot. It returns nil if the
// snapshot does not exist.
func (c *Client) Snapshot(ctx context.Context, snapshot string) (datapackage.Descriptor, error) {
	params := map[string]any{"hash": SnapshotID(snapshot)}

	var resp snapshotResponse
	if err := c.run(ctx, c.gql, graphql.NewRequest(snapshotQuery), params, &resp); err != nil {
		return nil, err
	}
	if resp.Snapshot == nil {
		return nil, nil
	}

	d, err := resp.Snapshot.Data.Descriptor()
	if err != nil {
		return nil, domain.RemoteQueryError(err, "malformed data for snapshot %q on %s", snapshot, c.baseURL)
	}
	return d, nil
}

// LastModified reads the Last-Modified header of a raw data file. The
// service reports it in GMT.
func (c *Client) LastModified(ctx context.Context, datafile string) (time.Time, error) {
	fileURL := c.MediaURL(datafile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, queryError(err, "fetching %s failed", fileURL)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, domain.RemoteQueryError(nil, "fetching %s returned status %d", fileURL, resp.StatusCode)
	}

	header := resp.Header.Get("Last-Modified")
	if header == "" {
		return time.Time{}, domain.RemoteQueryError(nil, "%s has no Last-Modified header", fileURL)
	}
	modified, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}, domain.RemoteQueryError(err, "invalid Last-Modified header on %s", fileURL)
	}

	return modified.UTC(), nil
}

// ReadPackage fetches the package of a snapshot
func (c *Client) ReadPackage(ctx context.Context, snapshot string) (datapackage.Descriptor, error) {
	return NewStorage(c, StorageConfig{SnapshotHash: snapshot}).ReadPackage(ctx)
}

// WritePackage uploads a package according to cfg
func (c *Client) WritePackage(ctx context.Context, cfg StorageConfig, pkg datapackage.Descriptor) (string, error) {
	return NewStorage(c, cfg).WritePackage(ctx, pkg)
}

// queryError builds a remote query error; timeouts are marked retryable.
func queryError(cause error, format string, args ...any) error {
	return &domain.Error{
		Kind:      domain.ErrRemoteQuery,
		Note:      fmt.Sprintf(format, args...),
		Err:       cause,
		Retryable: isTimeout(cause),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
