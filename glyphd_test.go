package glyphd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pkt.systems/glyphd/api"
	"pkt.systems/glyphd/client"
	"pkt.systems/glyphd/fontedit"
	"pkt.systems/glyphd/internal/core"
)

var testFont = FontIdentity{Family: "noto-sans", Weight: 400}

// glyphServer serves a scripted font over the wire protocol: one base
// generation and glyph data for every codepoint in its map.
type glyphServer struct {
	srv        *httptest.Server
	info       *core.FileInfo
	glyphs     map[rune][]byte
	baseHits   atomic.Int64
	glyphsHits atomic.Int64
}

func newGlyphServer(t *testing.T) *glyphServer {
	t.Helper()
	fingerprint := fontedit.Fingerprint([]byte("font-v1"))
	info := &core.FileInfo{
		CodepointMap: make(map[rune]uint32),
		Fingerprint:  fingerprint,
	}
	glyphs := make(map[rune][]byte)
	for code := 'a'; code <= 'z'; code++ {
		info.CodepointMap[code] = uint32(code)
		glyphs[code] = []byte{byte(code), 0xfe}
	}
	gs := &glyphServer{info: info, glyphs: glyphs}
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathBase, func(w http.ResponseWriter, r *http.Request) {
		gs.baseHits.Add(1)
		w.Write(fontedit.EncodeBase(gs.info, fontedit.EmptyArtifact()))
	})
	mux.HandleFunc(api.PathGlyphs, func(w http.ResponseWriter, r *http.Request) {
		gs.glyphsHits.Add(1)
		var req api.GlyphRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		subset := make(map[rune][]byte)
		for _, code := range req.Codepoints {
			if data, ok := gs.glyphs[rune(code)]; ok {
				subset[rune(code)] = data
			}
		}
		payload, count := fontedit.EncodeGlyphPayload(subset)
		json.NewEncoder(w).Encode(api.GlyphBundle{
			GlyphCount:  count,
			Payload:     payload,
			Fingerprint: gs.info.Fingerprint,
		})
	})
	gs.srv = httptest.NewServer(mux)
	t.Cleanup(gs.srv.Close)
	return gs
}

func (gs *glyphServer) source(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{Endpoint: gs.srv.URL})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()
	gs := newGlyphServer(t)
	src := gs.source(t)

	cases := []struct {
		name string
		font FontIdentity
		cfg  Config
	}{
		{"missing family", FontIdentity{Weight: 400}, Config{Source: src, Editor: fontedit.New()}},
		{"zero weight", FontIdentity{Family: "noto-sans"}, Config{Source: src, Editor: fontedit.New()}},
		{"missing source", testFont, Config{Editor: fontedit.New()}},
		{"missing editor", testFont, Config{Source: src}},
		{"negative chunk", testFont, Config{Source: src, Editor: fontedit.New(), RequestChunkSize: -1}},
		{"bad store scheme", testFont, Config{Source: src, Editor: fontedit.New(), Store: "s3://bucket"}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.font, tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestManagerEndToEnd(t *testing.T) {
	t.Parallel()
	gs := newGlyphServer(t)
	dsn := "disk://" + t.TempDir()

	mgr, err := NewManager(testFont, Config{
		Store:              dsn,
		Source:             gs.source(t),
		Editor:             fontedit.New(),
		DisableObfuscation: true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	res, err := mgr.LoadGlyphs(context.Background(), "hilo")
	if err != nil {
		t.Fatalf("LoadGlyphs: %v", err)
	}
	if res.Requested != 4 || res.Needed != 4 || res.Injected != 4 || !res.NeedsRefresh {
		t.Fatalf("first load: %+v", res)
	}

	raw, err := mgr.FontBytes()
	if err != nil {
		t.Fatalf("FontBytes: %v", err)
	}
	embedded, err := fontedit.EmbeddedCodes(raw)
	if err != nil {
		t.Fatalf("EmbeddedCodes: %v", err)
	}
	if string(embedded) != "hilo" {
		t.Fatalf("embedded = %q, want %q", string(embedded), "hilo")
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh session hydrates from the disk store without re-fetching the
	// base from the network.
	mgr, err = NewManager(testFont, Config{
		Store:              dsn,
		Source:             gs.source(t),
		Editor:             fontedit.New(),
		DisableObfuscation: true,
	})
	if err != nil {
		t.Fatalf("NewManager (reload): %v", err)
	}
	defer mgr.Close()

	if err := mgr.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := string(mgr.CachedCharacters()); got != "hilo" {
		t.Fatalf("reloaded cache = %q, want %q", got, "hilo")
	}
	if hits := gs.baseHits.Load(); hits != 1 {
		t.Fatalf("base fetches = %d, want 1 across sessions", hits)
	}

	res, err = mgr.LoadGlyphs(context.Background(), "hils")
	if err != nil {
		t.Fatalf("LoadGlyphs (reload): %v", err)
	}
	if res.Needed != 1 || res.Injected != 1 {
		t.Fatalf("incremental load after reload: %+v", res)
	}
}

func TestInspectAndPurgeStore(t *testing.T) {
	t.Parallel()
	gs := newGlyphServer(t)
	dsn := "disk://" + t.TempDir()

	mgr, err := NewManager(testFont, Config{
		Store:              dsn,
		Source:             gs.source(t),
		Editor:             fontedit.New(),
		DisableObfuscation: true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.LoadGlyphs(context.Background(), "hi"); err != nil {
		t.Fatalf("LoadGlyphs: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := InspectStore(context.Background(), dsn, testFont, nil)
	if err != nil {
		t.Fatalf("InspectStore: %v", err)
	}
	if info.Fingerprint != gs.info.Fingerprint {
		t.Fatalf("fingerprint = %q, want %q", info.Fingerprint, gs.info.Fingerprint)
	}
	if info.Loadable != 26 || len(info.Embedded) != 2 {
		t.Fatalf("store info: %+v", info)
	}

	if err := PurgeStore(context.Background(), dsn, testFont, nil); err != nil {
		t.Fatalf("PurgeStore: %v", err)
	}
	if _, err := InspectStore(context.Background(), dsn, testFont, nil); !errors.Is(err, ErrNotCached) {
		t.Fatalf("InspectStore after purge: %v, want ErrNotCached", err)
	}
}

func TestDisablePersistenceSkipsStore(t *testing.T) {
	t.Parallel()
	gs := newGlyphServer(t)
	dsn := "disk://" + t.TempDir()

	mgr, err := NewManager(testFont, Config{
		Store:              dsn,
		Source:             gs.source(t),
		Editor:             fontedit.New(),
		DisableObfuscation: true,
		DisablePersistence: true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.LoadGlyphs(context.Background(), "hi"); err != nil {
		t.Fatalf("LoadGlyphs: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := InspectStore(context.Background(), dsn, testFont, nil); !errors.Is(err, ErrNotCached) {
		t.Fatalf("persistence disabled but store populated: %v", err)
	}
}

func TestOpenBackendSchemes(t *testing.T) {
	t.Parallel()
	for _, dsn := range []string{"", "mem://", "memory://", "disk://" + t.TempDir()} {
		backend, err := openBackend(dsn, nil)
		if err != nil {
			t.Fatalf("openBackend(%q): %v", dsn, err)
		}
		backend.Close()
	}
	if _, err := openBackend("s3://bucket/prefix", nil); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
