package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vidshare/internal/auth"
	"vidshare/internal/content"
	"vidshare/internal/jobs"
	"vidshare/internal/sharetoken"
	"vidshare/internal/sqldb"
	"vidshare/internal/video"
)

type fakeProcessor struct {
	duration float64
	probeErr error
}

func (p *fakeProcessor) Probe(ctx context.Context, path string) (float64, error) {
	return p.duration, p.probeErr
}

func (p *fakeProcessor) Trim(ctx context.Context, src, dst string, start, end float64) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("trim[%g-%g]:%s", start, end, data)), 0644)
}

func (p *fakeProcessor) Merge(ctx context.Context, srcs []string, dst string) error {
	var b bytes.Buffer
	for _, s := range srcs {
		data, err := os.ReadFile(s)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(dst, b.Bytes(), 0644)
}

type recordingQueue struct {
	mu     sync.Mutex
	queued []*jobs.Job
	err    error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, job)
	return nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	videos  *video.SQLMetadataService
	content *content.FSStore
	proc    *fakeProcessor
	queue   *recordingQueue
	now     time.Time
	token   string
}

func newTestEnv(t *testing.T, configure func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := sqldb.OpenSQLite(ctx, filepath.Join(dir, "web.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	videos, err := video.NewSQLMetadataService(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLMetadataService: %v", err)
	}
	jobStore, err := jobs.NewSQLStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	users, err := auth.NewSQLUserStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLUserStore: %v", err)
	}
	store, err := content.NewFSStore(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	tokens, _ := auth.NewTokenManager([]byte("jwt-secret"), 0, 0)
	authSvc := &auth.Service{Users: users, Tokens: tokens, BcryptCost: bcrypt.MinCost}

	env := &testEnv{
		videos:  videos,
		content: store,
		proc:    &fakeProcessor{duration: 20},
		queue:   &recordingQueue{},
		now:     time.Unix(1_700_000_000, 0),
	}
	codec, err := sharetoken.New([]byte("share-secret"), sharetoken.DefaultSalt)
	if err != nil {
		t.Fatalf("sharetoken.New: %v", err)
	}

	deps := Deps{
		Videos:    videos,
		Content:   store,
		Processor: env.proc,
		Jobs:      jobStore,
		Queue:     env.queue,
		Runner: &jobs.Runner{
			Videos:    videos,
			Content:   store,
			Processor: env.proc,
			Jobs:      jobStore,
			TempDir:   dir,
		},
		Auth:           authSvc,
		Share:          codec.WithClock(func() time.Time { return env.now }),
		PublicBaseURL:  "http://testserver",
		Sync:           true,
		UploadMinBytes: 10,
		UploadMaxBytes: 20,
		MinDuration:    5,
		MaxDuration:    25,
		TempDir:        dir,
	}
	if configure != nil {
		configure(&deps)
	}
	env.server = NewServer(deps)
	env.handler = env.server.Handler()

	if _, err := authSvc.Register(ctx, auth.Registration{Username: "tester", Email: "tester@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, err := authSvc.Login(ctx, "tester", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	env.token = pair.Access
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	return e.do(t, method, target, r, "application/json")
}

func (e *testEnv) upload(t *testing.T, filename string, data []byte, title string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if title != "" {
		mw.WriteField("title", title)
	}
	fw, err := mw.CreateFormFile("video_file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return e.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
}

func (e *testEnv) mustUpload(t *testing.T, filename string, data []byte) *video.Video {
	t.Helper()
	rec := e.upload(t, filename, data, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var v video.Video
	decode(t, rec, &v)
	return &v
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	decode(t, rec, &body)
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.token = ""
	rec := env.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, nil)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/videos"},
		{http.MethodGet, "/videos/1"},
		{http.MethodPut, "/videos/1"},
		{http.MethodDelete, "/videos/1"},
		{http.MethodPost, "/upload"},
		{http.MethodPost, "/trim/1"},
		{http.MethodPost, "/merge"},
		{http.MethodGet, "/jobs/abc"},
		{http.MethodGet, "/share/1"},
	}
	for _, token := range []string{"", "not-a-jwt"} {
		env.token = token
		for _, rt := range routes {
			rec := env.do(t, rt.method, rt.path, nil, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("%s %s with token %q: expected 401, got %d", rt.method, rt.path, token, rec.Code)
			}
		}
	}
}

func TestRequireUser_StoresUser(t *testing.T) {
	env := newTestEnv(t, nil)
	var got string
	h := env.server.requireUser(func(w http.ResponseWriter, r *http.Request) {
		got = userFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/videos", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	h(httptest.NewRecorder(), req)
	if got != "tester" {
		t.Fatalf("expected tester, got %q", got)
	}
	if name := userFrom(context.Background()); name != "" {
		t.Fatalf("expected no user on a bare context, got %q", name)
	}
}

func TestUpload_SizeBoundaries(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		size int
		want int
	}{
		{9, http.StatusBadRequest},
		{10, http.StatusCreated},
		{15, http.StatusCreated},
		{20, http.StatusCreated},
		{21, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := env.upload(t, "clip.mp4", bytes.Repeat([]byte("x"), tt.size), "")
		if rec.Code != tt.want {
			t.Fatalf("size %d: expected %d, got %d: %s", tt.size, tt.want, rec.Code, rec.Body)
		}
		if tt.want == http.StatusBadRequest {
			if msg := errorBody(t, rec).Fields["video_file"]; !strings.Contains(msg, "File size") {
				t.Fatalf("size %d: expected video_file size error, got %q", tt.size, msg)
			}
		}
	}
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "no file")
	mw.Close()

	rec := env.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if errorBody(t, rec).Fields["video_file"] == "" {
		t.Fatalf("expected video_file error, got %s", rec.Body)
	}
}

func TestUpload_RecordsMetadata(t *testing.T) {
	env := newTestEnv(t, nil)
	data := bytes.Repeat([]byte("v"), 12)

	v := env.mustUpload(t, "../holiday clip.mp4", data)
	if v.Id == 0 || v.Title != "holiday clip.mp4" || v.FileSize != 12 || v.Duration != 20 {
		t.Fatalf("unexpected video: %+v", v)
	}
	if v.IsMerged || v.IsTrimmed || v.UploadedAt.IsZero() {
		t.Fatalf("unexpected flags: %+v", v)
	}
	if !strings.HasPrefix(v.File, "videos/") || strings.Contains(v.File, "..") || strings.Contains(v.File, " ") {
		t.Fatalf("unsafe object name %q", v.File)
	}

	obj, err := env.content.Open(context.Background(), v.File)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	defer obj.Body.Close()
	stored, _ := io.ReadAll(obj.Body)
	if !bytes.Equal(stored, data) {
		t.Fatalf("stored content differs")
	}

	rec := env.upload(t, "clip.mp4", data, "My title")
	var titled video.Video
	decode(t, rec, &titled)
	if titled.Title != "My title" {
		t.Fatalf("expected explicit title, got %q", titled.Title)
	}
}

func TestUpload_DurationEnforcement(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.EnforceDuration = true })
	data := bytes.Repeat([]byte("x"), 15)

	tests := []struct {
		duration float64
		probeErr error
		want     int
	}{
		{4.9, nil, http.StatusBadRequest},
		{5, nil, http.StatusCreated},
		{25, nil, http.StatusCreated},
		{25.1, nil, http.StatusBadRequest},
		{0, errors.New("not a video"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		env.proc.duration, env.proc.probeErr = tt.duration, tt.probeErr
		rec := env.upload(t, "clip.mp4", data, "")
		if rec.Code != tt.want {
			t.Fatalf("duration %g (err %v): expected %d, got %d: %s", tt.duration, tt.probeErr, tt.want, rec.Code, rec.Body)
		}
	}
}

func TestUpload_DurationNotEnforced(t *testing.T) {
	env := newTestEnv(t, nil)
	env.proc.duration, env.proc.probeErr = 0, errors.New("not a video")
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 15))
	if v.Duration != 0 {
		t.Fatalf("expected unknown duration, got %g", v.Duration)
	}

	env.proc.duration, env.proc.probeErr = 60, nil
	env.mustUpload(t, "long.mp4", bytes.Repeat([]byte("x"), 15))
}

func TestVideoLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 15))
	path := fmt.Sprintf("/videos/%d", v.Id)

	rec := env.do(t, http.MethodGet, "/videos", nil, "")
	var list []video.Video
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list) != 1 || list[0].Id != v.Id {
		t.Fatalf("unexpected list %d %s", rec.Code, rec.Body)
	}

	rec = env.doJSON(t, http.MethodPut, path, map[string]string{"title": "Renamed"})
	var updated video.Video
	decode(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.Title != "Renamed" || !updated.UploadedAt.Equal(v.UploadedAt) {
		t.Fatalf("unexpected update %d %s", rec.Code, rec.Body)
	}

	rec = env.doJSON(t, http.MethodPut, path, map[string]string{"title": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: expected 400, got %d", rec.Code)
	}
	rec = env.doJSON(t, http.MethodPut, path, map[string]string{"title": strings.Repeat("t", 256)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("long title: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, path, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if _, err := env.content.Open(context.Background(), v.File); !errors.Is(err, content.ErrNotExist) {
		t.Fatalf("stored file not removed: %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if rec := env.do(t, method, path, nil, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s after delete: expected 404, got %d", method, rec.Code)
		}
	}
	if rec := env.doJSON(t, http.MethodPut, path, map[string]string{"title": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("PUT after delete: expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/videos/abc", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("malformed id: expected 404, got %d", rec.Code)
	}
}

func TestTrim_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 15))
	path := fmt.Sprintf("/trim/%d", v.Id)

	tests := map[string]struct {
		body  any
		field string
	}{
		"missing times":    {map[string]any{}, "start"},
		"negative start":   {map[string]any{"start": -1, "end": 3}, "start"},
		"start equals end": {map[string]any{"start": 3, "end": 3}, "end"},
		"start after end":  {map[string]any{"start": 4, "end": 3}, "end"},
		"past duration":    {map[string]any{"start": 1, "end": 20.5}, "end"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPost, path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
			if errorBody(t, rec).Fields[tt.field] == "" {
				t.Fatalf("expected %s error, got %s", tt.field, rec.Body)
			}
		})
	}

	// an upload that could not be probed is probed again before trimming
	env.proc.duration, env.proc.probeErr = 0, errors.New("not a video")
	unprobed := env.mustUpload(t, "unprobed.mp4", bytes.Repeat([]byte("u"), 15))
	unprobedPath := fmt.Sprintf("/trim/%d", unprobed.Id)
	rec := env.doJSON(t, http.MethodPost, unprobedPath, map[string]any{"start": 0, "end": 1e6})
	if rec.Code != http.StatusBadRequest || errorBody(t, rec).Fields["end"] == "" {
		t.Fatalf("unknown duration: expected 400 on end, got %d: %s", rec.Code, rec.Body)
	}
	env.proc.duration, env.proc.probeErr = 8, nil
	if rec := env.doJSON(t, http.MethodPost, unprobedPath, map[string]any{"start": 0, "end": 9}); rec.Code != http.StatusBadRequest {
		t.Fatalf("end past re-probed duration: expected 400, got %d: %s", rec.Code, rec.Body)
	}
	if rec := env.doJSON(t, http.MethodPost, unprobedPath, map[string]any{"start": 0, "end": 8}); rec.Code != http.StatusOK {
		t.Fatalf("end at re-probed duration: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	if rec := env.doJSON(t, http.MethodPost, "/trim/999", map[string]any{"start": 0, "end": 1}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown video: expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, path, strings.NewReader("{"), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestTrim_Sync(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 15))

	rec := env.doJSON(t, http.MethodPost, fmt.Sprintf("/trim/%d", v.Id), map[string]any{"start": 1, "end": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var res jobResult
	decode(t, rec, &res)
	if res.Message != "Video trimmed" || res.Id == 0 || !strings.HasPrefix(res.File, "videos/trimmed_") {
		t.Fatalf("unexpected result %+v", res)
	}

	out, err := env.videos.Read(context.Background(), res.Id)
	if err != nil || !out.IsTrimmed {
		t.Fatalf("trimmed video not recorded: %+v %v", out, err)
	}
}

func TestMerge(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.mustUpload(t, "a.mp4", bytes.Repeat([]byte("a"), 10))
	b := env.mustUpload(t, "b.mp4", bytes.Repeat([]byte("b"), 10))

	for _, ids := range [][]int64{nil, {}, {a.Id}} {
		rec := env.doJSON(t, http.MethodPost, "/merge", map[string]any{"video_ids": ids})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("ids %v: expected 400, got %d", ids, rec.Code)
		}
	}
	if rec := env.doJSON(t, http.MethodPost, "/merge", map[string]any{"video_ids": []int64{a.Id, 999}}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rec.Code)
	}

	rec := env.doJSON(t, http.MethodPost, "/merge", map[string]any{"video_ids": []int64{b.Id, a.Id}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var res jobResult
	decode(t, rec, &res)
	if res.Message != "Videos merged" {
		t.Fatalf("unexpected message %q", res.Message)
	}

	obj, err := env.content.Open(context.Background(), res.File)
	if err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if string(data) != strings.Repeat("b", 10)+strings.Repeat("a", 10) {
		t.Fatalf("merge order lost: %q", data)
	}
}

func TestProcessing_Async(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Sync = false })
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 15))

	rec := env.doJSON(t, http.MethodPost, fmt.Sprintf("/trim/%d", v.Id), map[string]any{"start": 0, "end": 2})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var accepted jobAccepted
	decode(t, rec, &accepted)
	if accepted.JobId == "" || accepted.Status != jobs.StatusQueued {
		t.Fatalf("unexpected ack %+v", accepted)
	}
	if len(env.queue.queued) != 1 || env.queue.queued[0].Id != accepted.JobId {
		t.Fatalf("job not enqueued: %+v", env.queue.queued)
	}

	rec = env.do(t, http.MethodGet, "/jobs/"+accepted.JobId, nil, "")
	var job jobs.Job
	decode(t, rec, &job)
	if rec.Code != http.StatusOK || job.Kind != jobs.KindTrim || job.VideoId != v.Id {
		t.Fatalf("unexpected job %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, http.MethodGet, "/jobs/unknown", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: expected 404, got %d", rec.Code)
	}

	env.queue.err = errors.New("queue down")
	rec = env.doJSON(t, http.MethodPost, fmt.Sprintf("/trim/%d", v.Id), map[string]any{"start": 0, "end": 2})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("enqueue failure: expected 500, got %d", rec.Code)
	}
}

func (e *testEnv) shareLink(t *testing.T, id int64) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, fmt.Sprintf("/share/%d", id), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("share: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Link string `json:"link"`
	}
	decode(t, rec, &body)
	path, ok := strings.CutPrefix(body.Link, "http://testserver")
	if !ok {
		t.Fatalf("unexpected link %q", body.Link)
	}
	return path
}

func TestShare_StreamAndDownload(t *testing.T) {
	env := newTestEnv(t, nil)
	data := []byte("0123456789abcdef")
	v := env.mustUpload(t, "clip.mp4", data)

	path := env.shareLink(t, v.Id)
	if !strings.HasPrefix(path, fmt.Sprintf("/stream/%d/", v.Id)) {
		t.Fatalf("unexpected share path %q", path)
	}

	// share links work without a session
	env.token = ""
	rec := env.do(t, http.MethodGet, path, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stream: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, `inline; filename="`) {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatalf("unexpected body %q", rec.Body)
	}

	download := strings.Replace(path, "/stream/", "/download/", 1)
	rec = env.do(t, http.MethodGet, download, nil, "")
	if cd := rec.Header().Get("Content-Disposition"); rec.Code != http.StatusOK || !strings.HasPrefix(cd, `attachment; filename="`) {
		t.Fatalf("download: unexpected %d %q", rec.Code, cd)
	}

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Range", "bytes=0-3")
	ranged := httptest.NewRecorder()
	env.handler.ServeHTTP(ranged, req)
	if ranged.Code != http.StatusPartialContent || ranged.Body.String() != "0123" {
		t.Fatalf("range: unexpected %d %q", ranged.Code, ranged.Body)
	}
}

func TestShare_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.mustUpload(t, "a.mp4", bytes.Repeat([]byte("a"), 10))
	b := env.mustUpload(t, "b.mp4", bytes.Repeat([]byte("b"), 10))

	pathA := env.shareLink(t, a.Id)
	tokenA := pathA[strings.LastIndex(pathA, "/")+1:]
	env.token = ""

	expectForbidden := func(path, message string) {
		t.Helper()
		rec := env.do(t, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rec.Code)
		}
		if got := errorBody(t, rec).Error; got != message {
			t.Fatalf("%s: expected %q, got %q", path, message, got)
		}
	}

	expectForbidden(fmt.Sprintf("/stream/%d/%s", b.Id, tokenA), "Invalid access")
	expectForbidden(fmt.Sprintf("/download/%d/%s", b.Id, tokenA), "Invalid access")
	expectForbidden(fmt.Sprintf("/stream/%d/%s", a.Id, tokenA[:len(tokenA)-1]+flip(tokenA[len(tokenA)-1])), "Invalid or expired token")
	expectForbidden(fmt.Sprintf("/stream/%d/garbage", a.Id), "Invalid or expired token")

	env.now = env.now.Add(sharetoken.DefaultMaxAge)
	if rec := env.do(t, http.MethodGet, pathA, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("token at max age: expected 200, got %d", rec.Code)
	}
	env.now = env.now.Add(time.Second)
	expectForbidden(pathA, "Invalid or expired token")
}

func TestShare_VideoDeleted(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.mustUpload(t, "clip.mp4", bytes.Repeat([]byte("x"), 10))
	path := env.shareLink(t, v.Id)
	if rec := env.do(t, http.MethodDelete, fmt.Sprintf("/videos/%d", v.Id), nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, path, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted video, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/share/999", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("share unknown video: expected 404, got %d", rec.Code)
	}
}

func flip(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}

func TestAccounts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.token = ""

	rec := env.doJSON(t, http.MethodPost, "/register", map[string]string{
		"username": "newbie", "email": "newbie@example.com", "password": "password1",
	})
	if rec.Code != http.StatusCreated || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("register: unexpected %d %s", rec.Code, rec.Body)
	}

	rec = env.doJSON(t, http.MethodPost, "/register", map[string]string{
		"username": "newbie", "email": "bad", "password": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid register: expected 400, got %d", rec.Code)
	}
	if fields := errorBody(t, rec).Fields; fields["email"] == "" || fields["password"] == "" {
		t.Fatalf("expected email and password errors, got %v", fields)
	}

	rec = env.doJSON(t, http.MethodPost, "/register", map[string]string{
		"username": "newbie", "email": "other@example.com", "password": "password1",
	})
	if rec.Code != http.StatusBadRequest || errorBody(t, rec).Fields["username"] == "" {
		t.Fatalf("duplicate username: unexpected %d %s", rec.Code, rec.Body)
	}

	if rec := env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "newbie", "password": "nope-nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodPost, "/login", map[string]string{"username": "newbie", "password": "password1"})
	var pair auth.TokenPair
	decode(t, rec, &pair)
	if rec.Code != http.StatusOK || pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("login: unexpected %d %s", rec.Code, rec.Body)
	}

	// refresh tokens are not session tokens
	env.token = pair.Refresh
	if rec := env.do(t, http.MethodGet, "/videos", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token as session: expected 401, got %d", rec.Code)
	}
	env.token = ""

	rec = env.doJSON(t, http.MethodPost, "/token/refresh", map[string]string{"refresh": pair.Refresh})
	var refreshed map[string]string
	decode(t, rec, &refreshed)
	if rec.Code != http.StatusOK || refreshed["access"] == "" {
		t.Fatalf("refresh: unexpected %d %s", rec.Code, rec.Body)
	}
	if rec := env.doJSON(t, http.MethodPost, "/token/refresh", map[string]string{"refresh": pair.Access}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token as refresh: expected 401, got %d", rec.Code)
	}

	env.token = refreshed["access"]
	if rec := env.do(t, http.MethodGet, "/videos", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("refreshed session: expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/videos", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://app.example" {
		t.Fatalf("unexpected preflight %d %v", rec.Code, rec.Header())
	}
}
