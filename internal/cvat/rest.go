package cvat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BuckanovNikita/cveta2/internal/config"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

const (
	pageSize       = 100
	requestTimeout = 60 * time.Second
	maxRetries     = 3
)

// Client is the REST implementation of API. Requests authenticate with a
// personal access token when configured, otherwise with basic auth, and
// retry transient failures (network errors and 5xx responses) with
// exponential backoff.
type Client struct {
	base *url.URL
	cfg  config.CvatConfig
	http *http.Client
	log  *logrus.Entry
}

var _ API = (*Client)(nil)

// NewClient builds a Client for the configured host.
func NewClient(cfg config.CvatConfig, log *logrus.Entry) (*Client, error) {
	if cfg.Host == "" {
		return nil, types.ErrHostNotConfigured
	}
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid CVAT host %q", cfg.Host)
	}
	return &Client{
		base: base,
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
		log:  log,
	}, nil
}

// transientError marks an error worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// do runs one authenticated request with retries and returns the
// response body. Non-2xx statuses below 500 fail permanently; a 404
// maps to types.ErrProjectNotFound / ErrTaskNotFound at call sites.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	var out []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Token "+c.cfg.Token)
		} else if c.cfg.Username != "" {
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}
		if c.cfg.Organization != "" {
			req.Header.Set("X-Organization", c.cfg.Organization)
		}

		c.log.WithFields(logrus.Fields{"method": method, "url": rawURL}).Trace("cvat request")
		resp, err := c.http.Do(req)
		if err != nil {
			return &transientError{err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{err}
		}
		if resp.StatusCode >= 500 {
			return &transientError{errors.Errorf("server error %d: %s", resp.StatusCode, truncate(data))}
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(&httpError{status: resp.StatusCode, body: truncate(data)})
		}
		out = data
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("wait", wait).Warn("retrying CVAT request")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, rawURL)
	}
	return out, nil
}

// httpError is a non-retryable HTTP failure.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.status, e.body) }

// IsNotFound reports whether err is an HTTP 404 from the server.
func IsNotFound(err error) bool {
	var he *httpError
	return errors.As(err, &he) && he.status == http.StatusNotFound
}

func truncate(data []byte) string {
	const limit = 512
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	data, err := c.do(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, dst), "decoding %s", path)
}

// page is one page of a CVAT list endpoint.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// listAll walks a paginated list endpoint to exhaustion.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("page_size", strconv.Itoa(pageSize))
	next := c.endpoint(path, query)

	var all []T
	for next != "" {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", path)
		}
		all = append(all, p.Results...)
		if p.Next == nil {
			break
		}
		next = *p.Next
	}
	return all, nil
}

// ListProjects fetches id and name of every visible project.
func (c *Client) ListProjects(ctx context.Context) ([]types.ProjectInfo, error) {
	raw, err := listAll[struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}](ctx, c, "/api/projects", nil)
	if err != nil {
		return nil, err
	}
	projects := make([]types.ProjectInfo, len(raw))
	for i, p := range raw {
		projects[i] = types.ProjectInfo{ID: p.ID, Name: p.Name}
	}
	return projects, nil
}

type taskJSON struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	Subset        string `json:"subset"`
	UpdatedDate   string `json:"updated_date"`
	SourceStorage *struct {
		CloudStorageID int `json:"cloud_storage_id"`
	} `json:"source_storage"`
}

// ProjectTasks fetches all tasks of a project.
func (c *Client) ProjectTasks(ctx context.Context, projectID int) ([]types.TaskInfo, error) {
	query := url.Values{"project_id": {strconv.Itoa(projectID)}}
	raw, err := listAll[taskJSON](ctx, c, "/api/tasks", query)
	if err != nil {
		return nil, err
	}
	tasks := make([]types.TaskInfo, len(raw))
	for i, t := range raw {
		tasks[i] = types.TaskInfo{
			ID:          t.ID,
			Name:        t.Name,
			Status:      t.Status,
			Subset:      t.Subset,
			UpdatedDate: t.UpdatedDate,
		}
		if t.SourceStorage != nil {
			tasks[i].SourceStorageID = t.SourceStorage.CloudStorageID
		}
	}
	return tasks, nil
}

// ProjectLabels fetches all labels of a project with their attribute specs.
func (c *Client) ProjectLabels(ctx context.Context, projectID int) ([]types.LabelInfo, error) {
	query := url.Values{"project_id": {strconv.Itoa(projectID)}}
	return listAll[types.LabelInfo](ctx, c, "/api/labels", query)
}

// TaskDataMeta fetches the frame list and deleted frame ids of a task.
func (c *Client) TaskDataMeta(ctx context.Context, taskID int) (types.DataMeta, error) {
	var meta types.DataMeta
	err := c.getJSON(ctx, fmt.Sprintf("/api/tasks/%d/data/meta", taskID), nil, &meta)
	return meta, err
}

// TaskAnnotations fetches the labeled data (shapes and tracks) of a task.
func (c *Client) TaskAnnotations(ctx context.Context, taskID int) (types.TaskAnnotations, error) {
	var ann types.TaskAnnotations
	err := c.getJSON(ctx, fmt.Sprintf("/api/tasks/%d/annotations", taskID), nil, &ann)
	return ann, err
}

// CloudStorage fetches and parses one cloud storage attachment. The
// bucket comes from the resource field; prefix and endpoint hide in the
// query-string-encoded specific_attributes.
func (c *Client) CloudStorage(ctx context.Context, storageID int) (types.CloudStorageInfo, error) {
	var raw struct {
		ID                 int    `json:"id"`
		Resource           string `json:"resource"`
		SpecificAttributes string `json:"specific_attributes"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/cloudstorages/%d", storageID), nil, &raw); err != nil {
		return types.CloudStorageInfo{}, err
	}

	info := types.CloudStorageInfo{ID: raw.ID, Bucket: raw.Resource}
	attrs, err := url.ParseQuery(raw.SpecificAttributes)
	if err != nil {
		c.log.WithError(err).WithField("storage_id", storageID).
			Warn("unparseable cloud storage attributes")
		return info, nil
	}
	info.Prefix = attrs.Get("prefix")
	info.Endpoint = attrs.Get("endpoint_url")
	return info, nil
}

// CreateLabel adds a label to a project. CVAT creates labels through a
// partial project update.
func (c *Client) CreateLabel(ctx context.Context, projectID int, name, color string) error {
	body, err := json.Marshal(map[string]any{
		"labels": []map[string]string{{"name": name, "color": color}},
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch,
		c.endpoint(fmt.Sprintf("/api/projects/%d", projectID), nil), body)
	return err
}

// UpdateLabel patches a label's name and/or color.
func (c *Client) UpdateLabel(ctx context.Context, labelID int, patch LabelPatch) error {
	fields := map[string]string{}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Color != nil {
		fields["color"] = *patch.Color
	}
	if len(fields) == 0 {
		return nil
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch,
		c.endpoint(fmt.Sprintf("/api/labels/%d", labelID), nil), body)
	return err
}

// DeleteLabel removes a label and all annotations using it.
func (c *Client) DeleteLabel(ctx context.Context, labelID int) error {
	_, err := c.do(ctx, http.MethodDelete,
		c.endpoint(fmt.Sprintf("/api/labels/%d", labelID), nil), nil)
	return err
}
