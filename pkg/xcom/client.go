package xcom

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"xrelay/pkg/config"
	"xrelay/pkg/errors"
	"xrelay/pkg/logger"
	"xrelay/pkg/queryid"
)

// Client forwards follower operations to the upstream GraphQL API. It holds
// no credential state; every call receives its bundle explicitly.
type Client struct {
	httpClient *http.Client
	baseURL    string
	registry   *queryid.Registry
	pageSize   int
	logger     logger.Logger
}

// NewClient creates an upstream client. The per-call timeout lives on the
// underlying http.Client; a timed-out call classifies as upstream
// unavailability.
func NewClient(cfg *config.UpstreamConfig, registry *queryid.Registry, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		registry: registry,
		pageSize: cfg.PageSize,
		logger:   log,
	}
}

// ListFollowers fetches one page of the acting user's followers. The cursor
// is forwarded verbatim; pass an empty cursor to start a listing pass.
func (c *Client) ListFollowers(ctx context.Context, creds CredentialBundle, userID, cursor string) (*FollowerPage, error) {
	details, err := c.registry.Lookup(queryid.OpListFollowers)
	if err != nil {
		return nil, errors.Newf(errors.KindUpstreamUnavailable, 0, "no current query id for followers listing: %v", err)
	}

	reqURL, err := followersURL(c.baseURL, details.QueryID, userID, cursor, c.pageSize)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, 0, "failed to build followers URL: %v", err)
	}

	c.logger.DebugWithFields("listing followers", map[string]interface{}{
		"user_id":    userID,
		"has_cursor": cursor != "",
	})

	body, err := c.do(ctx, http.MethodGet, reqURL, creds, nil)
	if err != nil {
		return nil, err
	}

	var resp timelineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Newf(errors.KindUnknown, http.StatusOK, "failed to parse followers response: %v", err)
	}

	page := normalizeFollowerPage(&resp)
	if len(page.Followers) == 0 && len(resp.Errors) > 0 {
		return nil, errors.Newf(errors.KindUnknown, http.StatusOK, "upstream error: %s", resp.Errors[0].Message)
	}

	c.logger.DebugWithFields("followers page fetched", map[string]interface{}{
		"user_id":  userID,
		"returned": len(page.Followers),
		"has_next": page.NextCursor != "",
	})
	return page, nil
}

// RemoveFollower forwards one removal to upstream. The call is issued
// exactly once; retry policy belongs to the caller.
func (c *Client) RemoveFollower(ctx context.Context, creds CredentialBundle, targetUserID string) error {
	details, err := c.registry.Lookup(queryid.OpRemoveFollower)
	if err != nil {
		return errors.Newf(errors.KindUpstreamUnavailable, 0, "no current query id for follower removal: %v", err)
	}

	payload, err := json.Marshal(removeFollowerPayload{
		Variables: removeFollowerVariables{TargetUserID: targetUserID},
		QueryID:   details.QueryID,
	})
	if err != nil {
		return errors.Newf(errors.KindUnknown, 0, "failed to encode removal payload: %v", err)
	}

	c.logger.DebugWithFields("removing follower", map[string]interface{}{
		"target_follower_id": targetUserID,
	})

	body, err := c.do(ctx, http.MethodPost, removeFollowerURL(c.baseURL, details.QueryID), creds, payload)
	if err != nil {
		return err
	}

	var resp removeFollowerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Newf(errors.KindUnknown, http.StatusOK, "failed to parse removal response: %v", err)
	}
	if len(resp.Errors) > 0 {
		return classifyGraphQLError(resp.Errors[0])
	}
	return nil
}

// do performs one upstream call with the bundle applied and classifies any
// failure. The response body is fully read so the transport connection can
// be reused.
func (c *Client) do(ctx context.Context, method, reqURL string, creds CredentialBundle, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, 0, "failed to create request: %v", err)
	}
	creds.applyTo(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, errors.Newf(errors.KindUpstreamUnavailable, 0, "upstream call failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf(errors.KindUpstreamUnavailable, resp.StatusCode, "failed to read upstream response: %v", err)
	}

	c.logger.DebugWithFields("upstream call completed", map[string]interface{}{
		"method":   method,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp)
	}
	return body, nil
}

// classifyStatus maps a non-200 upstream status onto the error taxonomy.
func (c *Client) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.KindUpstreamUnauthorized, resp.StatusCode, "upstream rejected the supplied credentials")
	case resp.StatusCode == http.StatusTooManyRequests:
		e := errors.New(errors.KindUpstreamRateLimited, resp.StatusCode, "upstream rate limit exceeded")
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return e
	case resp.StatusCode == http.StatusNotFound:
		// The account is gone or was never a follower.
		return errors.New(errors.KindAlreadyRemoved, resp.StatusCode, "target not found upstream")
	case resp.StatusCode >= 500:
		return errors.Newf(errors.KindUpstreamUnavailable, resp.StatusCode, "upstream returned status %d", resp.StatusCode)
	default:
		return errors.Newf(errors.KindUnknown, resp.StatusCode, "unexpected upstream status %d", resp.StatusCode)
	}
}

// classifyGraphQLError maps an error object inside a 200 response. Upstream
// reports an already-detached follower this way rather than with a status.
func classifyGraphQLError(gqlErr graphQLError) error {
	msg := strings.ToLower(gqlErr.Message)
	if strings.Contains(msg, "not following") || strings.Contains(msg, "not a follower") {
		return errors.New(errors.KindAlreadyRemoved, http.StatusOK, gqlErr.Message)
	}
	return errors.Newf(errors.KindUnknown, http.StatusOK, "upstream error: %s", gqlErr.Message)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
