package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/objstore"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/persist"
	"github.com/xtxerr/seiscube/internal/session"
	"github.com/xtxerr/seiscube/internal/testutil"
	"github.com/xtxerr/seiscube/internal/volume"
)

var testSurvey = testutil.SurveySpec{Inlines: 3, Crosslines: 4, Samples: 5}

type testServer struct {
	session *session.Session
	handler http.Handler
}

func newTestServer(t *testing.T, withStore bool, mutate func(*config.ServerConfig)) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg.Server)
	}

	var store objstore.Store
	if withStore {
		b, err := objstore.Open(context.Background(), "mem://", "")
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		store = b
	}

	builder := volume.NewBuilder()
	builder.Logger = logging.Discard()
	builder.Mapper.Logger = logging.Discard()
	builder.Estimator.Logger = logging.Discard()

	s := session.New(session.Options{
		CacheSize: cfg.Cache.MaxEntries,
		Builder:   builder,
		Bridge:    persist.NewBridge(store, persist.OptionsFromConfig(cfg)),
		Logger:    logging.Discard(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	})

	srv := New(s, cfg.Server)
	srv.logger = logging.Discard()
	return &testServer{session: s, handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

type part struct {
	name string
	data []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		w, err := mw.CreateFormFile("files", p.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		w.Write(p.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func segyFile(t *testing.T) []byte {
	headers, traces := testutil.Survey(testSurvey)
	return testutil.SEGY(t, headers, traces)
}

func zipFile(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write(data)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code int32) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != code || resp.Kind != errors.CodeName(code) || resp.Error == "" {
		t.Errorf("error body = %+v, want code %d", resp, code)
	}
}

func (ts *testServer) upload(t *testing.T, parts ...part) UploadResponse {
	t.Helper()
	rec := ts.do(t, multipartRequest(t, parts...))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	ts.session.WaitWarm()
	return decode[UploadResponse](t, rec)
}

func TestAPI_NoCube(t *testing.T) {
	ts := newTestServer(t, false, nil)

	expectError(t, ts.get(t, "/api/cube-info"), http.StatusNotFound, errors.CodeNoCube)
	expectError(t, ts.get(t, "/api/slice/inline/0"), http.StatusNotFound, errors.CodeNoCube)

	rec := ts.get(t, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	h := decode[session.Health](t, rec)
	if h.Status != "healthy" || h.DataLoaded || h.Store != "disconnected" {
		t.Errorf("health = %+v", h)
	}
}

func TestAPI_UploadAndSlice(t *testing.T) {
	ts := newTestServer(t, false, nil)

	up := ts.upload(t, part{"survey.sgy", segyFile(t)})
	if up.CubeID == "" || up.StoreConnected {
		t.Errorf("upload = %+v", up)
	}
	if diff := cmp.Diff([]string{"survey.sgy"}, up.Files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if up.CubeInfo.Shape != [3]int{3, 4, 5} || up.Build.Placed != 12 {
		t.Errorf("upload info = %+v, build = %+v", up.CubeInfo, up.Build)
	}

	info := decode[payload.CubeInfo](t, ts.get(t, "/api/cube-info"))
	if diff := cmp.Diff(up.CubeInfo.Shape, info.Shape); diff != "" {
		t.Errorf("cube-info shape (-upload +info):\n%s", diff)
	}

	rec := ts.get(t, "/api/slice/sample/2")
	if rec.Code != http.StatusOK {
		t.Fatalf("slice status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("uncompressed request got an encoded body")
	}
	doc := decode[payload.SliceDoc](t, rec)
	if len(doc.Data) != 3 || len(doc.Data[0]) != 4 {
		t.Fatalf("slice is %dx%d, want 3x4", len(doc.Data), len(doc.Data[0]))
	}
	if got, want := doc.Data[2][1], testutil.Amplitude(2, 1, 2); got != want {
		t.Errorf("data[2][1] = %v, want %v", got, want)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/slice/xline/1", nil)
	req.Header.Set("Accept-Encoding", "br, gzip")
	rec = ts.do(t, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
	raw, err := payload.Gunzip(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if _, err := payload.DecodeSlice(raw); err != nil {
		t.Errorf("compressed body is not a slice document: %v", err)
	}
}

func TestAPI_SliceErrors(t *testing.T) {
	ts := newTestServer(t, false, nil)
	ts.upload(t, part{"survey.segy", segyFile(t)})

	tests := []struct {
		path   string
		status int
		code   int32
	}{
		{"/api/slice/diagonal/0", http.StatusBadRequest, errors.CodeInvalidRequest},
		{"/api/slice/inline/abc", http.StatusBadRequest, errors.CodeInvalidRequest},
		{"/api/slice/inline/3", http.StatusBadRequest, errors.CodeOutOfRange},
		{"/api/slice/sample/-1", http.StatusBadRequest, errors.CodeOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			expectError(t, ts.get(t, tt.path), tt.status, tt.code)
		})
	}
}

func TestAPI_UploadZip(t *testing.T) {
	ts := newTestServer(t, false, nil)

	archive := zipFile(t, map[string][]byte{
		"readme.txt":      []byte("survey"),
		"data/line1.segy": segyFile(t),
	})
	up := ts.upload(t, part{"bundle.zip", archive})
	if up.CubeInfo.Shape != [3]int{3, 4, 5} {
		t.Errorf("shape = %v", up.CubeInfo.Shape)
	}
	if m, err := ts.session.GetCube(context.Background(), up.CubeID); err != nil || m.Filename != "line1.segy" {
		t.Errorf("cube = %+v, %v", m, err)
	}
}

func TestAPI_UploadRejects(t *testing.T) {
	ts := newTestServer(t, false, func(c *config.ServerConfig) { c.MaxUploadMB = 1 })

	empty := zipFile(t, map[string][]byte{"notes.txt": []byte("nothing")})
	expectError(t, ts.do(t, multipartRequest(t, part{"empty.zip", empty})),
		http.StatusBadRequest, errors.CodeInvalidRequest)

	expectError(t, ts.do(t, multipartRequest(t, part{"survey.txt", []byte("x")})),
		http.StatusBadRequest, errors.CodeInvalidRequest)

	expectError(t, ts.do(t, multipartRequest(t, part{"bad.sgy", []byte("too short")})),
		http.StatusBadRequest, errors.CodeFormat)

	expectError(t, ts.do(t, multipartRequest(t, part{"big.sgy", make([]byte, 2<<20)})),
		http.StatusRequestEntityTooLarge, errors.CodeTooLarge)

	noFiles := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	expectError(t, ts.do(t, noFiles), http.StatusBadRequest, errors.CodeInvalidRequest)
}

func TestAPI_UploadSkipsUnusableParts(t *testing.T) {
	ts := newTestServer(t, false, nil)
	up := ts.upload(t,
		part{"README.txt", []byte("survey notes")},
		part{"empty.sgy", nil},
		part{"broken.sgy", []byte("too short")},
		part{"survey.sgy", segyFile(t)},
	)

	if diff := cmp.Diff([]string{"README.txt", "empty.sgy"}, up.Ignored); diff != "" {
		t.Errorf("ignored (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"broken.sgy", "survey.sgy"}, up.Files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if up.CubeID == "" || up.CubeInfo.Shape[0] != testSurvey.Inlines {
		t.Errorf("upload = %+v", up)
	}
}

func TestAPI_CubeLifecycle(t *testing.T) {
	ts := newTestServer(t, true, nil)
	first := ts.upload(t, part{"a.sgy", segyFile(t)})
	second := ts.upload(t, part{"b.sgy", segyFile(t)})
	if !second.StoreConnected {
		t.Error("store not reported as connected")
	}
	if err := ts.session.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	list := decode[CubesResponse](t, ts.get(t, "/api/cubes"))
	if list.Count != 2 || len(list.Cubes) != 2 {
		t.Fatalf("cubes = %+v", list)
	}

	rec := ts.get(t, "/api/cube/"+first.CubeID)
	if rec.Code != http.StatusOK {
		t.Fatalf("get cube status = %d: %s", rec.Code, rec.Body.String())
	}
	if m := decode[payload.Metadata](t, rec); m.Filename != "a.sgy" {
		t.Errorf("filename = %q", m.Filename)
	}

	del := ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/cube/"+first.CubeID, nil))
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", del.Code, del.Body.String())
	}
	resp := decode[DeleteResponse](t, del)
	if resp.Message != "Cube deleted successfully" || resp.DeletedObjects < 1 {
		t.Errorf("delete = %+v", resp)
	}

	expectError(t, ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/cube/"+first.CubeID, nil)),
		http.StatusNotFound, errors.CodeNotFound)
	expectError(t, ts.get(t, "/api/cube/"+first.CubeID), http.StatusNotFound, errors.CodeNotFound)
	expectError(t, ts.get(t, "/api/cube/a.b"), http.StatusBadRequest, errors.CodeInvalidRequest)
}

func TestAPI_CubesWithoutStore(t *testing.T) {
	ts := newTestServer(t, false, nil)
	rec := ts.get(t, "/api/cubes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[CubesResponse](t, rec)
	if list.Count != 0 || list.Cubes == nil {
		t.Errorf("cubes = %+v", list)
	}
}

func TestAPI_NotFound(t *testing.T) {
	ts := newTestServer(t, false, nil)

	rec := ts.get(t, "/api/nope")
	expectError(t, rec, http.StatusNotFound, errors.CodeNotFound)
	if resp := decode[ErrorResponse](t, rec); resp.Error != "Endpoint not found" {
		t.Errorf("error = %q", resp.Error)
	}

	// Unrouted methods fall through to the JSON 404.
	expectError(t, ts.do(t, httptest.NewRequest(http.MethodPut, "/api/health", nil)),
		http.StatusNotFound, errors.CodeNotFound)
}

func TestAPI_CORS(t *testing.T) {
	ts := newTestServer(t, false, func(c *config.ServerConfig) {
		c.AllowedOrigins = []string{"https://viewer.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/slice/inline/0", nil)
	req.Header.Set("Origin", "https://viewer.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := ts.do(t, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = ts.do(t, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", true},
		{"deflate, gzip;q=0.8", true},
		{"GZIP", true},
		{"gzip;q=0", false},
		{"br", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", tt.header)
		if got := acceptsGzip(req); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
