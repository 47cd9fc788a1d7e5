// pkg/download/download.go - catalog HTTP exchange and response validation.

package download

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/metrics"
)

const (
	Timeout        = 15 * time.Second
	ConnectTimeout = 5 * time.Second
	MaxRedirects   = 10
	UserAgent      = "tinfoil"

	encryptedMarker = "TINFOIL"
)

// clientHeaders identify the client the way catalog servers expect.
var clientHeaders = map[string]string{
	"Theme":    "Awoo-Installer",
	"Uid":      "0000000000000000",
	"Version":  "0.0",
	"Revision": "0",
	"Language": "en",
	"Hauth":    "0",
	"Uauth":    "0",
}

// Error kinds, usable with errors.Is.
var (
	ErrTransport    = errors.New("transport failure")
	ErrAuthRequired = errors.New("authentication required")
	ErrAuthPage     = errors.New("login page returned")
	ErrEncrypted    = errors.New("encrypted payload not supported")
)

// Error is a classified fetch or validation failure.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Credentials are optional HTTP basic-auth credentials.
type Credentials struct {
	User string
	Pass string
}

// Empty reports whether no credentials were given.
func (c Credentials) Empty() bool {
	return c.User == "" && c.Pass == ""
}

// Outcome is the raw result of one GET.
type Outcome struct {
	Body         []byte
	StatusCode   int
	EffectiveURL string
	ContentType  string
	Err          error
}

// Fetcher performs catalog and file downloads against a shop.
type Fetcher struct {
	client  *resty.Client
	files   *resty.Client
	metrics *metrics.Metrics
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
		TLSHandshakeTimeout: ConnectTimeout,
		// Self-hosted shops commonly use self-signed certificates.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

func newClient(transport http.RoundTripper, timeout time.Duration) *resty.Client {
	return resty.New().
		SetTransport(transport).
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(MaxRedirects)).
		SetHeaders(clientHeaders).
		SetHeader("User-Agent", UserAgent).
		SetDisableWarn(true)
}

// NewFetcher creates a Fetcher. A nil m records into metrics.Default().
func NewFetcher(m *metrics.Metrics) *Fetcher {
	if m == nil {
		m = metrics.Default()
	}
	transport := newTransport()
	return &Fetcher{
		client:  newClient(transport, Timeout),
		files:   newClient(transport, 0),
		metrics: m,
	}
}

// NormalizeURL trims whitespace, defaults the scheme to http and strips one trailing slash.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimSuffix(u, "/")
}

func (f *Fetcher) request(ctx context.Context, client *resty.Client, creds Credentials) *resty.Request {
	req := client.R().SetContext(ctx)
	if !creds.Empty() {
		req.SetBasicAuth(creds.User, creds.Pass)
	}
	return req
}

// Fetch issues one GET and captures everything Validate needs.
func (f *Fetcher) Fetch(ctx context.Context, url string, creds Credentials) Outcome {
	start := time.Now()
	logging.Debug("Fetching shop resource", "url", url, "auth", !creds.Empty())

	resp, err := f.request(ctx, f.client, creds).Get(url)

	out := Outcome{EffectiveURL: url, Err: err}
	if resp != nil {
		out.Body = resp.Body()
		out.StatusCode = resp.StatusCode()
		out.ContentType = resp.Header().Get("Content-Type")
		if resp.RawResponse != nil && resp.RawResponse.Request != nil {
			out.EffectiveURL = resp.RawResponse.Request.URL.String()
		}
	}

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		logging.Warn("Shop request failed", "url", url, "error", err)
	}
	f.metrics.ObserveFetch(result, time.Since(start))
	logging.Debug("Shop response received",
		"url", url,
		"status", out.StatusCode,
		"effective_url", out.EffectiveURL,
		"content_type", out.ContentType,
		"bytes", len(out.Body))
	return out
}

// Validate classifies an Outcome. Servers often answer 200 with a login page
// or misreport content-type, so the body is sniffed as well as the status.
func Validate(o Outcome) error {
	if o.Err != nil {
		return &Error{Kind: ErrTransport, Message: o.Err.Error(), Err: o.Err}
	}
	if o.StatusCode == http.StatusUnauthorized || o.StatusCode == http.StatusForbidden {
		return &Error{
			Kind:    ErrAuthRequired,
			Message: "Shop requires authentication. Check credentials or enable the public shop.",
		}
	}
	if isLoginPage(o) {
		msg := "Shop returned a login page. Check shop URL, username, and password, or enable the public shop."
		if title := pageTitle(o.Body); title != "" {
			msg += " (page title: " + title + ")"
		}
		return &Error{Kind: ErrAuthPage, Message: msg}
	}
	if bytes.HasPrefix(o.Body, []byte(encryptedMarker)) {
		return &Error{
			Kind:    ErrEncrypted,
			Message: "Encrypted shop responses are not supported. Disable shop encryption on the server.",
		}
	}
	return nil
}

func isLoginPage(o Outcome) bool {
	if strings.Contains(o.EffectiveURL, "/login") {
		return true
	}
	if o.ContentType != "" && strings.Contains(strings.ToLower(o.ContentType), "text/html") {
		return true
	}
	if containsHTML(o.Body) {
		return true
	}
	return len(o.Body) > 0 && mimetype.Detect(o.Body).Is("text/html")
}

func containsHTML(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<html"))
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
