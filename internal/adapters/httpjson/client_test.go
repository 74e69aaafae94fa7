package httpjson

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearthd/hearth-core/internal/poll"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Options{Endpoint: server.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, server
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name:    "valid http endpoint",
			opts:    Options{Endpoint: "http://192.168.1.50/state"},
			wantErr: false,
		},
		{
			name:    "valid https endpoint",
			opts:    Options{Endpoint: "https://bridge.local/api/state"},
			wantErr: false,
		},
		{
			name:    "empty endpoint",
			opts:    Options{},
			wantErr: true,
		},
		{
			name:    "non-http scheme",
			opts:    Options{Endpoint: "ftp://192.168.1.50/state"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Fetch Tests
// =============================================================================

func TestFetch_Success(t *testing.T) {
	var gotAuth, gotAccept string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"temperature":21.5,"heating":true,"mode":"auto"}`))
	})

	payload, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept header = %q, want %q", gotAccept, "application/json")
	}

	if payload["temperature"] != 21.5 {
		t.Errorf("payload[temperature] = %v, want 21.5", payload["temperature"])
	}
	if payload["heating"] != true {
		t.Errorf("payload[heating] = %v, want true", payload["heating"])
	}
	if payload["mode"] != "auto" {
		t.Errorf("payload[mode] = %v, want auto", payload["mode"])
	}
}

func TestFetch_NoTokenOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := New(Options{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if _, err := client.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotAuth != "" {
		t.Errorf("Authorization header = %q, want empty", gotAuth)
	}
}

func TestFetch_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrAuthFailed) {
		t.Errorf("Fetch() error = %v, want ErrAuthFailed", err)
	}
}

func TestFetch_Forbidden(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrAuthFailed) {
		t.Errorf("Fetch() error = %v, want ErrAuthFailed", err)
	}
}

func TestFetch_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrTransient) {
		t.Errorf("Fetch() error = %v, want ErrTransient", err)
	}
}

func TestFetch_TooManyRequests(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrTransient) {
		t.Errorf("Fetch() error = %v, want ErrTransient", err)
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temperature":`))
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrTransient) {
		t.Errorf("Fetch() error = %v, want ErrTransient", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrTransient) {
		t.Errorf("Fetch() error = %v, want ErrTransient", err)
	}
}

func TestFetch_DroppedConnection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Abort mid-response so the client sees a dropped connection.
		panic(http.ErrAbortHandler)
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrDisconnected) {
		t.Errorf("Fetch() error = %v, want ErrDisconnected", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx)
	if !errors.Is(err, poll.ErrTransient) {
		t.Errorf("Fetch() error = %v, want ErrTransient", err)
	}
}

// =============================================================================
// Reconnect Tests
// =============================================================================

func TestReconnect_RecoversAfterDrop(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			panic(http.ErrAbortHandler)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, poll.ErrDisconnected) {
		t.Fatalf("Fetch() error = %v, want ErrDisconnected", err)
	}

	if err := client.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	payload, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() after Reconnect() error = %v", err)
	}
	if payload["ok"] != true {
		t.Errorf("payload[ok] = %v, want true", payload["ok"])
	}
}

// =============================================================================
// Coordinator Integration
// =============================================================================

func TestClient_SatisfiesPollInterfaces(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	var _ poll.VendorClient = client
	var _ poll.Reconnector = client
}

func TestClient_DrivesCoordinator(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"power":12.5}`))
	})

	coord, err := poll.New(client, poll.Config{Interval: time.Minute})
	if err != nil {
		t.Fatalf("poll.New() error = %v", err)
	}

	snap, err := coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if snap.Data["power"] != 12.5 {
		t.Errorf("snapshot power = %v, want 12.5", snap.Data["power"])
	}
	if coord.State() != poll.StateConnected {
		t.Errorf("State() = %v, want StateConnected", coord.State())
	}
}
