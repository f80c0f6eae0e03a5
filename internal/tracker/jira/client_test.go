package jira

import (
	"encoding/base64"
	"net/http"
	"testing"
)

func TestSetAuthBasicWithUsername(t *testing.T) {
	c := NewClient("https://example.atlassian.net", "bot@example.com", "token")
	req, err := http.NewRequest(http.MethodGet, c.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	c.setAuth(req)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("bot@example.com:token"))
	if got := req.Header.Get("Authorization"); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestSetAuthBearerWithoutUsername(t *testing.T) {
	c := NewClient("https://jira.internal.example", "", "pat")
	req, err := http.NewRequest(http.MethodGet, c.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	c.setAuth(req)
	if got := req.Header.Get("Authorization"); got != "Bearer pat" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
}
