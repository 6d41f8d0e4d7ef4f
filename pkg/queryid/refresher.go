package queryid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"xrelay/pkg/logger"
	"xrelay/pkg/retry"
)

// Browser-like default. The upstream serves a stripped-down page to
// clients it does not recognize, without the bundle link.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

var (
	redirectURLRe = regexp.MustCompile(`document\.location\s*=\s*"(.*?)"`)
	formActionRe  = regexp.MustCompile(`<form[^>]*\bname="f"[^>]*\baction="([^"]+)"`)
	formInputRe   = regexp.MustCompile(`<input[^>]*\bname="([^"]+)"[^>]*\bvalue="([^"]*)"`)
	mainScriptRe  = regexp.MustCompile(`<link[^>]*\bhref="([^"]*main\.[^"]*\.js)"`)
)

// Refresher periodically re-scrapes the upstream web bundle and updates
// the registry with the query ids it exports.
type Refresher struct {
	registry  *Registry
	client    *http.Client
	baseURL   string
	userAgent string
	interval  time.Duration
	backoff   *retry.ExponentialBackoff
	logger    logger.Logger
}

// NewRefresher builds a refresher against the given base URL (normally
// the upstream's public site). The scrape flow needs cookies to survive
// the landing-page redirect dance, so the client carries a jar.
func NewRefresher(registry *Registry, baseURL string, interval time.Duration) (*Refresher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Refresher{
		registry: registry,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:   baseURL,
		userAgent: defaultUserAgent,
		interval:  interval,
		backoff: &retry.ExponentialBackoff{
			BaseDelay:    10 * time.Second,
			MaxDelay:     10 * time.Minute,
			Multiplier:   2.0,
			JitterFactor: 0.3,
		},
		logger: logger.GetLogger(),
	}, nil
}

// Run scrapes immediately, then on every interval tick until the context
// is cancelled. A failed scrape is retried with backoff; existing registry
// entries keep serving in the meantime.
func (r *Refresher) Run(ctx context.Context) {
	attempt := 0
	for {
		if err := r.RefreshOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := r.backoff.NextDelay(attempt)
			r.logger.WithError(err).WithField("retry_in", delay.String()).Error("Query id refresh failed")
			if retry.Wait(ctx, delay) != nil {
				return
			}
			continue
		}
		attempt = 0

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// RefreshOnce walks the upstream landing flow, downloads the main bundle,
// and updates the registry. It fails unless every known operation was
// found in the bundle.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	redirectURL, err := r.findInitialRedirect(ctx)
	if err != nil {
		return err
	}

	action, form, err := r.fetchRedirectForm(ctx, redirectURL)
	if err != nil {
		return err
	}
	if err := r.postRedirectForm(ctx, action, form); err != nil {
		return err
	}

	bundleURL, err := r.findBundleURL(ctx)
	if err != nil {
		return err
	}

	bundle, err := r.fetch(ctx, http.MethodGet, bundleURL, nil)
	if err != nil {
		return fmt.Errorf("failed to download bundle: %w", err)
	}

	exports, err := Extract(string(bundle))
	if err != nil {
		return fmt.Errorf("failed to extract operations from bundle: %w", err)
	}

	found := make(map[string]Details)
	for _, d := range exports {
		found[d.OperationName] = d
	}
	for _, op := range Operations {
		if _, ok := found[op]; !ok {
			return fmt.Errorf("operation %q not found in bundle", op)
		}
	}
	for _, op := range Operations {
		r.registry.Set(found[op])
	}

	if err := r.registry.SaveSnapshot(); err != nil {
		r.logger.WithError(err).Warn("Failed to persist query id snapshot")
	}

	r.logger.InfoWithFields("Query ids refreshed", map[string]interface{}{
		"followers_query_id": found[OpListFollowers].QueryID,
		"remove_query_id":    found[OpRemoveFollower].QueryID,
	})
	return nil
}

// findInitialRedirect parses the JavaScript redirect the landing page
// serves before any cookies are set.
func (r *Refresher) findInitialRedirect(ctx context.Context) (string, error) {
	body, err := r.fetch(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch landing page: %w", err)
	}
	m := redirectURLRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no redirect script on landing page")
	}
	return r.resolve(string(m[1]))
}

// fetchRedirectForm loads the redirect page and collects the hidden form
// it expects the browser to auto-submit.
func (r *Refresher) fetchRedirectForm(ctx context.Context, redirectURL string) (string, url.Values, error) {
	body, err := r.fetch(ctx, http.MethodGet, redirectURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch redirect page: %w", err)
	}

	actionMatch := formActionRe.FindSubmatch(body)
	if actionMatch == nil {
		return "", nil, fmt.Errorf("no redirect form on redirect page")
	}
	action, err := r.resolve(string(actionMatch[1]))
	if err != nil {
		return "", nil, err
	}

	form := url.Values{}
	for _, m := range formInputRe.FindAllSubmatch(body, -1) {
		form.Set(string(m[1]), string(m[2]))
	}
	return action, form, nil
}

func (r *Refresher) postRedirectForm(ctx context.Context, action string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post redirect form: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusFound {
		return fmt.Errorf("redirect form post returned status %d, expected 302", resp.StatusCode)
	}
	return nil
}

// findBundleURL loads the landing page in its post-redirect form and
// locates the main bundle's link tag.
func (r *Refresher) findBundleURL(ctx context.Context) (string, error) {
	body, err := r.fetch(ctx, http.MethodGet, r.baseURL+"/?mx=1", nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch main page: %w", err)
	}
	m := mainScriptRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no main bundle link on main page")
	}
	return r.resolve(string(m[1]))
}

func (r *Refresher) fetch(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// resolve makes relative scrape targets absolute against the base URL.
func (r *Refresher) resolve(ref string) (string, error) {
	base, err := url.Parse(r.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid scraped URL %q: %w", ref, err)
	}
	return base.ResolveReference(refURL).String(), nil
}
