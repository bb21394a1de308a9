package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			if _, err := io.ReadAll(r.Body); err != nil {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPRateLimiterThrottlesPerIP(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	handler := limiter.Middleware(okHandler())

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := request("10.0.0.1"); got != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", got, http.StatusOK)
	}
	if got := request("10.0.0.1"); got != http.StatusOK {
		t.Fatalf("second request: status = %d, want %d", got, http.StatusOK)
	}
	if got := request("10.0.0.1"); got != http.StatusTooManyRequests {
		t.Errorf("burst exceeded: status = %d, want %d", got, http.StatusTooManyRequests)
	}

	// A different client has its own bucket
	if got := request("10.0.0.2"); got != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", got, http.StatusOK)
	}
}

func TestMaxBodySizeRejectsOversizedBody(t *testing.T) {
	handler := MaxBodySize(16)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/patients", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q, want POST included", got)
	}
}

func TestGetClientIPPrefersForwardedFor(t *testing.T) {
	tests := []struct {
		name string
		set  func(r *http.Request)
		want string
	}{
		{
			name: "x-forwarded-for first hop",
			set: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			},
			want: "203.0.113.7",
		},
		{
			name: "x-real-ip",
			set: func(r *http.Request) {
				r.Header.Set("X-Real-IP", "198.51.100.2")
			},
			want: "198.51.100.2",
		},
		{
			name: "remote addr",
			set:  func(r *http.Request) {},
			want: "192.0.2.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.9:5555"
			tt.set(req)
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
