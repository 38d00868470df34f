package metablock_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantmind/rops/internal/metablock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI implements just enough of the metablock block endpoints to
// drive the reconciler.
type fakeAPI struct {
	blocks  []metablock.Block
	creates int
	updates int
	lastID  string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/spaces/{space}/blocks", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-metablock-api-key"); got != "token-123" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "quantmind/rops" {
			t.Errorf("user agent = %q", got)
		}
		name := r.URL.Query().Get("name")
		matches := []metablock.Block{}
		for _, b := range f.blocks {
			if b.Name == name {
				matches = append(matches, b)
			}
		}
		_ = json.NewEncoder(w).Encode(matches)
	})
	mux.HandleFunc("POST /v1/spaces/{space}/blocks", func(w http.ResponseWriter, r *http.Request) {
		f.creates++
		var cfg metablock.BlockConfig
		_ = json.NewDecoder(r.Body).Decode(&cfg)
		space := r.PathValue("space")
		block := metablock.Block{
			ID:       "blk-1",
			Name:     cfg.Name,
			Space:    metablock.Space{ID: "spc-1", Name: space, Domain: space + ".example.com"},
			FullName: space + "/" + cfg.Name,
		}
		f.blocks = append(f.blocks, block)
		_ = json.NewEncoder(w).Encode(block)
	})
	mux.HandleFunc("PATCH /v1/blocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.updates++
		f.lastID = r.PathValue("id")
		for _, b := range f.blocks {
			if b.ID == f.lastID {
				_ = json.NewEncoder(w).Encode(b)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *metablock.Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	client, err := metablock.NewClient(discardLogger(), srv.URL, "token-123")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := metablock.NewClient(discardLogger(), "https://api.metablock.io", ""); !errors.Is(err, metablock.ErrMissingToken) {
		t.Fatalf("NewClient() error = %v, want ErrMissingToken", err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	cfg := &metablock.BlockConfig{Name: "web", Upstream: "http://web.services"}

	block, err := client.Apply(context.Background(), "metablock", cfg)
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if block.FullName != "metablock/web" {
		t.Errorf("FullName = %q", block.FullName)
	}
	if api.creates != 1 || api.updates != 0 {
		t.Fatalf("after first apply: creates=%d updates=%d, want 1/0", api.creates, api.updates)
	}

	if _, err := client.Apply(context.Background(), "metablock", cfg); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if api.creates != 1 || api.updates != 1 {
		t.Fatalf("after second apply: creates=%d updates=%d, want 1/1", api.creates, api.updates)
	}
	if api.lastID != "blk-1" {
		t.Errorf("update keyed by %q, want blk-1", api.lastID)
	}
}

func TestApplyPrefersBlockSpace(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)
	cfg := &metablock.BlockConfig{Name: "web", Space: "frontend", Upstream: "http://web"}

	block, err := client.Apply(context.Background(), "metablock", cfg)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if block.Space.Name != "frontend" {
		t.Errorf("space = %q, want frontend", block.Space.Name)
	}
}

func TestLookupTakesFirstOfManyMatches(t *testing.T) {
	api := &fakeAPI{blocks: []metablock.Block{
		{ID: "first", Name: "web"},
		{ID: "second", Name: "web"},
	}}
	client := newTestClient(t, api)

	block, err := client.Lookup(context.Background(), "metablock", "web")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if block == nil || block.ID != "first" {
		t.Fatalf("Lookup() = %+v, want first match", block)
	}
}

func TestLookupAbsentBlockIsNotAnError(t *testing.T) {
	client := newTestClient(t, &fakeAPI{})

	block, err := client.Lookup(context.Background(), "metablock", "ghost")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if block != nil {
		t.Fatalf("Lookup() = %+v, want nil", block)
	}
}

func TestCreateClientErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"name taken"}`))
	}))
	defer srv.Close()
	client, err := metablock.NewClient(discardLogger(), srv.URL, "token-123")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Create(context.Background(), "metablock", &metablock.BlockConfig{Name: "web"})
	var apiErr *metablock.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Create() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("Status = %d, want 409", apiErr.Status)
	}
	if !strings.Contains(apiErr.Body, "name taken") {
		t.Errorf("Body = %q, want verbatim response body", apiErr.Body)
	}
}

func TestLookupDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	client, err := metablock.NewClient(discardLogger(), srv.URL, "token-123")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Lookup(context.Background(), "metablock", "web")
	var decodeErr *metablock.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Lookup() error = %v, want *DecodeError", err)
	}
}

func TestLookupTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client, err := metablock.NewClient(discardLogger(), srv.URL, "token-123")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Lookup(context.Background(), "metablock", "web"); err == nil {
		t.Fatal("expected transport error from closed server")
	}
}
