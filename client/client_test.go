package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/glyphd/api"
	"pkt.systems/glyphd/internal/core"
)

var testFont = core.FontIdentity{Family: "noto-sans", Weight: 400}

func TestNewValidatesEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if _, err := New(Config{Endpoint: "not a url"}); err == nil {
		t.Fatalf("expected error for malformed endpoint")
	}
	c, err := New(Config{Endpoint: "https://fonts.example.net/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.endpoint != "https://fonts.example.net" {
		t.Fatalf("endpoint not normalized: %q", c.endpoint)
	}
}

func TestFetchBase(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.PathBase {
			t.Errorf("path = %q, want %q", r.URL.Path, api.PathBase)
		}
		if got := r.URL.Query().Get("family"); got != "noto-sans" {
			t.Errorf("family = %q", got)
		}
		if got := r.URL.Query().Get("weight"); got != "400" {
			t.Errorf("weight = %q", got)
		}
		if r.Header.Get(CorrelationHeader) == "" {
			t.Errorf("missing correlation header")
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "glyphd") {
			t.Errorf("user agent = %q", ua)
		}
		w.Write([]byte("raw-base"))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := c.FetchBase(context.Background(), testFont)
	if err != nil {
		t.Fatalf("FetchBase: %v", err)
	}
	if string(raw) != "raw-base" {
		t.Fatalf("body = %q", raw)
	}
}

func TestFetchGlyphs(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != api.PathGlyphs {
			t.Errorf("%s %s, want POST %s", r.Method, r.URL.Path, api.PathGlyphs)
		}
		var req api.GlyphRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Family != "noto-sans" || req.Weight != 400 {
			t.Errorf("request identity: %+v", req)
		}
		if len(req.Codepoints) != 2 || req.Codepoints[0] != 'h' || req.Codepoints[1] != 'i' {
			t.Errorf("request codepoints: %v", req.Codepoints)
		}
		json.NewEncoder(w).Encode(api.GlyphBundle{
			GlyphCount:  2,
			Payload:     []byte("payload"),
			Fingerprint: "fp-1",
		})
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bundle, err := c.FetchGlyphs(context.Background(), testFont, []rune{'h', 'i'})
	if err != nil {
		t.Fatalf("FetchGlyphs: %v", err)
	}
	if bundle.GlyphCount != 2 || bundle.Fingerprint != "fp-1" {
		t.Fatalf("bundle = %+v", bundle)
	}
}

func TestStatusErrorCarriesBodySnippet(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "font not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.FetchBase(context.Background(), testFont)
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if !strings.Contains(err.Error(), "font not found") {
		t.Fatalf("error misses body snippet: %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error misses status: %v", err)
	}
}

func TestFetchGlyphsRejectsNegativeCount(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.GlyphBundle{GlyphCount: -1, Fingerprint: "fp-1"})
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.FetchGlyphs(context.Background(), testFont, []rune{'h'}); err == nil {
		t.Fatalf("expected error for negative glyph count")
	}
}
