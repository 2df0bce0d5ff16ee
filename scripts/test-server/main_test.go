package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouter(t *testing.T) {
	server := httptest.NewServer(newRouter())
	defer server.Close()

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/api/hello", http.StatusOK, `{"message":"Hello from Fiber!"}`},
		{"/api/error", http.StatusInternalServerError, `{"error":"internal error"}`},
		{"/health", http.StatusOK, "healthy"},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.body == "" {
				return
			}
			body, _ := io.ReadAll(resp.Body)
			if string(body) != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}
