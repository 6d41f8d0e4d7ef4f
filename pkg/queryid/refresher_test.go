package queryid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrelay/pkg/config"
)

// scrapeServer mimics the upstream landing flow: a script redirect, an
// auto-submitting form, then the real page carrying the bundle link.
func scrapeServer(t *testing.T, bundle string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mx") == "1" {
			fmt.Fprint(w, `<html><head><link rel="preload" href="/main.3f2ab9.js" nonce="n1"/></head></html>`)
			return
		}
		fmt.Fprint(w, `<html><script>document.location = "/x/migrate?tok=1"</script></html>`)
	})
	mux.HandleFunc("/x/migrate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><form name="f" action="/x/migrate_submit"><input type="hidden" name="tok" value="abc"/></form></html>`)
	})
	mux.HandleFunc("/x/migrate_submit", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "abc", r.PostFormValue("tok"))
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/main.3f2ab9.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bundle)
	})

	return httptest.NewServer(mux)
}

func TestRefresherRefreshOnce(t *testing.T) {
	srv := scrapeServer(t, sampleBundle)
	defer srv.Close()

	dataDir := t.TempDir()
	registry, err := NewRegistry(&config.QueryIDConfig{RefreshInterval: time.Hour, DataDir: dataDir})
	require.NoError(t, err)

	refresher, err := NewRefresher(registry, srv.URL, time.Hour)
	require.NoError(t, err)

	require.NoError(t, refresher.RefreshOnce(context.Background()))

	d, err := registry.Lookup(OpListFollowers)
	require.NoError(t, err)
	assert.Equal(t, "rRXFSG5vR6drKr5M37YOTw", d.QueryID)

	d, err = registry.Lookup(OpRemoveFollower)
	require.NoError(t, err)
	assert.Equal(t, "QpNfg0kpPRfjROQ_9eOLXA", d.QueryID)

	assert.FileExists(t, filepath.Join(dataDir, "query_ids.json"))
}

func TestRefresherMissingOperation(t *testing.T) {
	// Bundle only exports the followers query.
	srv := scrapeServer(t, `738:e=>{e.exports={queryId:"abc",operationName:"Followers",operationType:"query",metadata:{fieldToggles:[]}}}`)
	defer srv.Close()

	registry, err := NewRegistry(&config.QueryIDConfig{RefreshInterval: time.Hour})
	require.NoError(t, err)

	refresher, err := NewRefresher(registry, srv.URL, time.Hour)
	require.NoError(t, err)

	err = refresher.RefreshOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RemoveFollower")

	_, err = registry.Lookup(OpListFollowers)
	assert.Error(t, err, "a failed refresh must not partially update the registry")
}
