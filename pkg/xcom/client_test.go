package xcom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrelay/pkg/config"
	"xrelay/pkg/errors"
	"xrelay/pkg/logger"
	"xrelay/pkg/queryid"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func pinnedRegistry(t *testing.T) *queryid.Registry {
	t.Helper()
	r, err := queryid.NewRegistry(&config.QueryIDConfig{
		Followers:      "fq123",
		RemoveFollower: "rq456",
	})
	require.NoError(t, err)
	return r
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c := NewClient(&config.UpstreamConfig{
		BaseURL:  "https://upstream.example",
		Timeout:  5 * time.Second,
		PageSize: 50,
	}, pinnedRegistry(t), logger.NewTestLogger())
	c.httpClient.Transport = rt
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testCreds() CredentialBundle {
	return CredentialBundle{
		BearerToken: "bearer-token",
		CSRFToken:   "csrf-token",
		Cookies:     map[string]string{"auth_token": "cookie-value"},
		UserAgent:   "BrowserUA/1.0",
		ExtraHeaders: map[string]string{
			"Origin":          "https://relay.example",
			"Referer":         "https://relay.example/app",
			"Accept-Language": "en-US",
		},
	}
}

func userEntry(id, name, handle string) string {
	return fmt.Sprintf(`{
		"entryId": "user-%s",
		"content": {
			"entryType": "TimelineTimelineItem",
			"itemContent": {
				"itemType": "TimelineUser",
				"user_results": {"result": {
					"__typename": "User",
					"rest_id": %q,
					"is_blue_verified": false,
					"legacy": {"name": %q, "screen_name": %q, "profile_image_url_https": "https://pbs.example/%s.jpg", "verified": false}
				}}
			}
		}
	}`, id, id, name, handle, id)
}

func cursorEntry(value string) string {
	return fmt.Sprintf(`{
		"entryId": "cursor-bottom-1",
		"content": {"entryType": "TimelineTimelineCursor", "cursorType": "Bottom", "value": %q}
	}`, value)
}

func timelineBody(entries ...string) string {
	return fmt.Sprintf(`{"data": {"user": {"result": {"timeline": {"timeline": {"instructions": [
		{"type": "TimelineAddEntries", "entries": [%s]}
	]}}}}}}`, strings.Join(entries, ","))
}

func TestListFollowers(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, timelineBody(
			userEntry("101", "Alice", "alice"),
			userEntry("102", "Bob", "bob"),
			cursorEntry("c1"),
		)), nil
	})

	page, err := client.ListFollowers(context.Background(), testCreds(), "42", "prev-cursor")
	require.NoError(t, err)

	require.Len(t, page.Followers, 2)
	assert.Equal(t, FollowerRecord{
		ID:          "101",
		DisplayName: "Alice",
		Handle:      "alice",
		AvatarURL:   "https://pbs.example/101.jpg",
	}, page.Followers[0])
	assert.Equal(t, "c1", page.NextCursor)

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Contains(t, captured.URL.Path, "/i/api/graphql/fq123/Followers")

	variables := captured.URL.Query().Get("variables")
	assert.Contains(t, variables, `"userId":"42"`)
	assert.Contains(t, variables, `"cursor":"prev-cursor"`, "cursor must be forwarded verbatim")
	assert.NotEmpty(t, captured.URL.Query().Get("features"))

	assert.Equal(t, "Bearer bearer-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "csrf-token", captured.Header.Get("X-Csrf-Token"))
	assert.Equal(t, "BrowserUA/1.0", captured.Header.Get("User-Agent"))
	assert.Equal(t, "en-US", captured.Header.Get("Accept-Language"))
	assert.Empty(t, captured.Header.Get("Origin"))
	assert.Empty(t, captured.Header.Get("Referer"))

	cookie, err := captured.Cookie("auth_token")
	require.NoError(t, err)
	assert.Equal(t, "cookie-value", cookie.Value)
}

func TestListFollowersEmptyPageEndsListing(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		// Final pages still carry a bottom cursor but no user entries.
		return jsonResponse(http.StatusOK, timelineBody(cursorEntry("c-final"))), nil
	})

	page, err := client.ListFollowers(context.Background(), testCreds(), "42", "c2")
	require.NoError(t, err)
	assert.Empty(t, page.Followers)
	assert.Empty(t, page.NextCursor)
}

func TestListFollowersPaginationNoDuplicates(t *testing.T) {
	pages := map[string]string{
		"":   timelineBody(userEntry("1", "A", "a"), userEntry("2", "B", "b"), cursorEntry("c1")),
		"c1": timelineBody(userEntry("3", "C", "c"), cursorEntry("c2")),
		"c2": timelineBody(cursorEntry("c3")),
	}
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		var vars followersVariables
		require.NoError(t, json.Unmarshal([]byte(req.URL.Query().Get("variables")), &vars))
		body, ok := pages[vars.Cursor]
		require.True(t, ok, "unexpected cursor %q", vars.Cursor)
		return jsonResponse(http.StatusOK, body), nil
	})

	seen := make(map[string]bool)
	cursor := ""
	for {
		page, err := client.ListFollowers(context.Background(), testCreds(), "42", cursor)
		require.NoError(t, err)
		for _, f := range page.Followers {
			assert.False(t, seen[f.ID], "duplicate follower id %s across pages", f.ID)
			seen[f.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 3)
}

func TestUpstreamStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    http.Header
		wantKind   errors.Kind
		retryAfter time.Duration
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: errors.KindUpstreamUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, wantKind: errors.KindUpstreamUnauthorized},
		{
			name:       "rate limited with hint",
			status:     http.StatusTooManyRequests,
			headers:    http.Header{"Retry-After": []string{"120"}},
			wantKind:   errors.KindUpstreamRateLimited,
			retryAfter: 2 * time.Minute,
		},
		{name: "not found", status: http.StatusNotFound, wantKind: errors.KindAlreadyRemoved},
		{name: "server error", status: http.StatusInternalServerError, wantKind: errors.KindUpstreamUnavailable},
		{name: "bad gateway", status: http.StatusBadGateway, wantKind: errors.KindUpstreamUnavailable},
		{name: "unexpected", status: http.StatusTeapot, wantKind: errors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				resp := jsonResponse(tt.status, `{}`)
				for k, v := range tt.headers {
					resp.Header[k] = v
				}
				return resp, nil
			})

			err := client.RemoveFollower(context.Background(), testCreds(), "u1")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
			assert.Equal(t, tt.retryAfter, errors.RetryAfterOf(err))
		})
	}
}

func TestRemoveFollower(t *testing.T) {
	calls := 0
	var captured *http.Request
	var capturedBody []byte
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		captured = req
		capturedBody, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{"data": {"remove_follower": {"unfollow_success_reason": "Unfollowed"}}}`), nil
	})

	require.NoError(t, client.RemoveFollower(context.Background(), testCreds(), "777"))
	assert.Equal(t, 1, calls, "removal must be issued exactly once")

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Contains(t, captured.URL.Path, "/i/api/graphql/rq456/RemoveFollower")
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))

	var payload removeFollowerPayload
	require.NoError(t, json.Unmarshal(capturedBody, &payload))
	assert.Equal(t, "777", payload.Variables.TargetUserID)
	assert.Equal(t, "rq456", payload.QueryID)
}

func TestRemoveFollowerAlreadyRemoved(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"errors": [{"message": "User 777 is not following you", "code": 160}]}`), nil
	})

	err := client.RemoveFollower(context.Background(), testCreds(), "777")
	require.Error(t, err)
	assert.Equal(t, errors.KindAlreadyRemoved, errors.KindOf(err))
}

func TestNetworkFailureIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})

	err := client.RemoveFollower(context.Background(), testCreds(), "u1")
	require.Error(t, err)
	assert.Equal(t, errors.KindUpstreamUnavailable, errors.KindOf(err))
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(&config.UpstreamConfig{
		BaseURL:  srv.URL,
		Timeout:  20 * time.Millisecond,
		PageSize: 50,
	}, pinnedRegistry(t), logger.NewTestLogger())

	_, err := client.ListFollowers(context.Background(), testCreds(), "42", "")
	require.Error(t, err)
	assert.Equal(t, errors.KindUpstreamUnavailable, errors.KindOf(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 90*time.Second, parseRetryAfter("90"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}
