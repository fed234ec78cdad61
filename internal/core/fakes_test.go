package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/glyphd/api"
)

// fakeSource scripts the glyph service. The default bundle covers every
// requested codepoint and carries the configured fingerprint.
type fakeSource struct {
	mu          sync.Mutex
	base        []byte
	baseErr     error
	baseFetches int
	fingerprint string
	bundleFn    func(codes []rune) (*api.GlyphBundle, error)
	fetches     [][]rune
	inFlight    int
	maxInFlight int
}

func (f *fakeSource) FetchBase(_ context.Context, _ FontIdentity) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.baseErr != nil {
		return nil, f.baseErr
	}
	f.baseFetches++
	return append([]byte(nil), f.base...), nil
}

func (f *fakeSource) FetchGlyphs(_ context.Context, _ FontIdentity, codes []rune) (*api.GlyphBundle, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, append([]rune(nil), codes...))
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fn := f.bundleFn
	fp := f.fingerprint
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fn != nil {
		return fn(codes)
	}
	return &api.GlyphBundle{GlyphCount: len(codes), Fingerprint: fp}, nil
}

func (f *fakeSource) baseFetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseFetches
}

func (f *fakeSource) sentCodes() [][]rune {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]rune, len(f.fetches))
	copy(out, f.fetches)
	return out
}

func (f *fakeSource) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeSource) setFingerprint(fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fingerprint = fp
}

func (f *fakeSource) setBaseErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseErr = err
}

// fakeEditor hands out scripted metadata and appends a marker byte per
// injection so artifact growth is observable.
type fakeEditor struct {
	mu         sync.Mutex
	info       *FileInfo
	font       []byte
	injectErrs int
	injects    [][]rune
	cleared    int
}

func (e *fakeEditor) DecodeBase(_ []byte) (*FileInfo, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cm := make(map[rune]uint32, len(e.info.CodepointMap))
	for code, loc := range e.info.CodepointMap {
		cm[code] = loc
	}
	info := &FileInfo{
		CodepointMap: cm,
		OutlineOnly:  e.info.OutlineOnly,
		Fingerprint:  e.info.Fingerprint,
	}
	return info, append([]byte(nil), e.font...), nil
}

func (e *fakeEditor) Inject(_ *FileInfo, codes []rune, _ *api.GlyphBundle, font []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.injectErrs > 0 {
		e.injectErrs--
		return nil, fmt.Errorf("inject refused")
	}
	e.injects = append(e.injects, append([]rune(nil), codes...))
	return append(append([]byte(nil), font...), byte(len(codes))), nil
}

func (e *fakeEditor) Clear(FontIdentity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	return nil
}

func (e *fakeEditor) clearCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

type fakeMerged struct {
	base *MergedBase
}

func (m *fakeMerged) BaseFor(FontIdentity) (*MergedBase, bool) {
	if m.base == nil {
		return nil, false
	}
	return m.base, true
}

// faultRecorder captures reported faults for assertions.
type faultRecorder struct {
	mu     sync.Mutex
	faults []Fault
}

func (r *faultRecorder) ReportFault(_ context.Context, fault Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, fault)
}

func (r *faultRecorder) has(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.faults {
		if f.Code == code {
			return true
		}
	}
	return false
}

func testInfo(fingerprint string, lo, hi rune) *FileInfo {
	cm := make(map[rune]uint32, hi-lo+1)
	for code := lo; code <= hi; code++ {
		cm[code] = uint32(code)
	}
	return &FileInfo{CodepointMap: cm, Fingerprint: fingerprint}
}

var testFont = FontIdentity{Family: "noto-sans", Weight: 400}
