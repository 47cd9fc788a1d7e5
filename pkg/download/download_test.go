package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimianshop/pkg/metrics"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  shop.local:8465/ ", "http://shop.local:8465"},
		{"https://shop.example/", "https://shop.example"},
		{"http://host/path//", "http://host/path/"},
		{"http://host", "http://host"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), tt.in)
	}
}

func TestFetchSendsClientHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	out := NewFetcher(metrics.NewMetrics()).Fetch(context.Background(), srv.URL, Credentials{})
	require.NoError(t, out.Err)
	assert.Equal(t, 200, out.StatusCode)
	assert.Equal(t, `{"files":[]}`, string(out.Body))
	assert.Equal(t, "application/json", out.ContentType)

	assert.Equal(t, "tinfoil", got.Get("User-Agent"))
	assert.Equal(t, "Awoo-Installer", got.Get("Theme"))
	assert.Equal(t, "0000000000000000", got.Get("Uid"))
	assert.Equal(t, "0.0", got.Get("Version"))
	assert.Equal(t, "0", got.Get("Revision"))
	assert.Equal(t, "en", got.Get("Language"))
	assert.Equal(t, "0", got.Get("Hauth"))
	assert.Equal(t, "0", got.Get("Uauth"))
	assert.Empty(t, got.Get("Authorization"), "no credentials, no basic auth")
}

func TestFetchBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewFetcher(metrics.NewMetrics())
	out := f.Fetch(context.Background(), srv.URL, Credentials{User: "alice"})
	assert.NoError(t, Validate(out))

	out = f.Fetch(context.Background(), srv.URL, Credentials{})
	assert.ErrorIs(t, Validate(out), ErrAuthRequired)
}

func TestFetchFollowsRedirectToLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?next=/", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		// Misreported content type; the redirect target gives it away.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := NewFetcher(metrics.NewMetrics()).Fetch(context.Background(), srv.URL+"/", Credentials{})
	require.NoError(t, out.Err)
	assert.Contains(t, out.EffectiveURL, "/login")
	assert.ErrorIs(t, Validate(out), ErrAuthPage)
}

func TestFetchSkipsTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	out := NewFetcher(metrics.NewMetrics()).Fetch(context.Background(), srv.URL, Credentials{})
	require.NoError(t, out.Err)
	assert.NoError(t, Validate(out))
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewFetcher(metrics.NewMetrics()).Fetch(context.Background(), url, Credentials{})
	require.Error(t, out.Err)
	err := Validate(out)
	assert.ErrorIs(t, err, ErrTransport)

	var dlErr *Error
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, out.Err, dlErr.Unwrap())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    error
	}{
		{"ok json", Outcome{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"files":[]}`)}, nil},
		{"transport", Outcome{Err: errors.New("dial tcp: refused")}, ErrTransport},
		{"unauthorized", Outcome{StatusCode: 401}, ErrAuthRequired},
		{"forbidden", Outcome{StatusCode: 403, ContentType: "text/html"}, ErrAuthRequired},
		{"html content type", Outcome{StatusCode: 200, ContentType: "text/html; charset=utf-8", Body: []byte(`{}`)}, ErrAuthPage},
		{"login path", Outcome{StatusCode: 200, EffectiveURL: "http://host/login", Body: []byte(`{}`)}, ErrAuthPage},
		{"doctype marker", Outcome{StatusCode: 200, Body: []byte("\n<!DOCTYPE HTML><title>Sign in</title>")}, ErrAuthPage},
		{"html marker", Outcome{StatusCode: 200, Body: []byte(`<HTML><body>x</body></HTML>`)}, ErrAuthPage},
		{"sniffed html", Outcome{StatusCode: 200, Body: []byte(`<head><title>Login</title></head>`)}, ErrAuthPage},
		{"encrypted", Outcome{StatusCode: 200, Body: []byte("TINFOIL\x00\x01")}, ErrEncrypted},
		{"status checked before body", Outcome{StatusCode: 401, Body: []byte("TINFOIL")}, ErrAuthRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.outcome)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateIncludesLoginTitle(t *testing.T) {
	err := Validate(Outcome{StatusCode: 200, ContentType: "text/html", Body: []byte(`<html><head><title> Ownfoil Login </title></head></html>`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ownfoil Login")
}

func TestDownloadFile(t *testing.T) {
	payload := strings.Repeat("nsp", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.nsp" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewFetcher(metrics.NewMetrics())
	dest := filepath.Join(t.TempDir(), "sub", "game.nsp")

	var last int64
	err := f.DownloadFile(context.Background(), srv.URL+"/game.nsp", dest, Credentials{}, func(done, total int64) {
		last = done
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), last)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	missing := filepath.Join(t.TempDir(), "missing.nsp")
	err = f.DownloadFile(context.Background(), srv.URL+"/missing.nsp", missing, Credentials{}, nil)
	require.Error(t, err)
	assert.NoFileExists(t, missing)

	assert.Error(t, f.DownloadFile(context.Background(), "", dest, Credentials{}, nil))
}
