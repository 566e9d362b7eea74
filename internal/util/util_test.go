package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeUserAgent(t *testing.T) {
	tests := map[string]string{
		"SourceCheck/0.1 (+https://example.com)": "SourceCheck",
		"curl/8.0":                               "curl",
		"plain":                                  "plain",
		"":                                       "",
	}
	for in, want := range tests {
		if got := NormalizeUserAgent(in); got != want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRobotsChecker(t *testing.T) {
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			_, _ = fmt.Fprint(w, "User-agent: SourceCheck\nDisallow: /private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "SourceCheck/0.1")

	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/public/page")
	if err != nil {
		t.Fatalf("CanFetch() error = %v", err)
	}
	if !allowed {
		t.Error("Expected /public to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}

	allowed, _, err = checker.CanFetch(context.Background(), server.URL+"/private/page")
	if err != nil {
		t.Fatalf("CanFetch() error = %v", err)
	}
	if allowed {
		t.Error("Expected /private to be disallowed")
	}

	if robotsHits.Load() != 1 {
		t.Errorf("Expected robots.txt fetched once, got %d", robotsHits.Load())
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "SourceCheck/0.1")
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/anything")
	if err != nil {
		t.Fatalf("CanFetch() error = %v", err)
	}
	if !allowed {
		t.Error("Expected missing robots.txt to allow everything")
	}
}

func TestRobotsChecker_InvalidURL(t *testing.T) {
	checker := NewRobotsChecker(http.DefaultClient, "SourceCheck")
	if _, _, err := checker.CanFetch(context.Background(), "not a url"); err == nil {
		t.Error("Expected error for URL without host")
	}
}

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "", "skip.example.com")

	req, _ := http.NewRequest(http.MethodGet, "http://api.example.com/v1", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy() error = %v", err)
	}
	if u == nil || u.Host != "proxy.internal:3128" {
		t.Errorf("Expected proxy.internal:3128, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://skip.example.com/", nil)
	u, err = proxy(req)
	if err != nil {
		t.Fatalf("proxy() error = %v", err)
	}
	if u != nil {
		t.Errorf("Expected no proxy for NO_PROXY host, got %v", u)
	}
}
