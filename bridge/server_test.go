package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	text     string
	textOK   bool
	saved    []string
	audioURL string
	result   bool
}

func (f *fakeExporter) OpenTextFile(context.Context) (string, bool) { return f.text, f.textOK }

func (f *fakeExporter) SaveFeedback(_ context.Context, content string) bool {
	f.saved = append(f.saved, content)
	return f.result
}

func (f *fakeExporter) SaveAudio(_ context.Context, url string) bool {
	f.audioURL = url
	return f.result
}

const testToken = "t0ken"

func newTestRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/ipc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func testCode(t *testing.T, e http.Handler, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)
	assert.Equal(t, code, resp.Code)
	return resp
}

func TestIPCChannels(t *testing.T) {
	ex := &fakeExporter{text: "my script", textOK: true, result: true}
	e := initRoutes(ex, testToken)

	resp := testCode(t, e, newTestRequest(`{"channel":"dialog:openFile"}`), http.StatusOK)
	assert.JSONEq(t, `{"result":"my script"}`, resp.Body.String())

	resp = testCode(t, e, newTestRequest(`{"channel":"dialog:saveFeedback","args":["Overall score: 7/10"]}`), http.StatusOK)
	assert.JSONEq(t, `{"result":true}`, resp.Body.String())
	assert.Equal(t, []string{"Overall score: 7/10"}, ex.saved)

	resp = testCode(t, e, newTestRequest(`{"channel":"dialog:saveAudio","args":["https://cdn/x.mp3"]}`), http.StatusOK)
	assert.JSONEq(t, `{"result":true}`, resp.Body.String())
	assert.Equal(t, "https://cdn/x.mp3", ex.audioURL)
}

func TestIPCCancelledOpenIsNull(t *testing.T) {
	e := initRoutes(&fakeExporter{}, testToken)
	resp := testCode(t, e, newTestRequest(`{"channel":"dialog:openFile"}`), http.StatusOK)
	assert.JSONEq(t, `{"result":null}`, resp.Body.String())

	resp = testCode(t, e, newTestRequest(`{"channel":"dialog:saveAudio","args":["u"]}`), http.StatusOK)
	assert.JSONEq(t, `{"result":false}`, resp.Body.String())
}

func TestIPCRejects(t *testing.T) {
	e := initRoutes(&fakeExporter{}, testToken)

	testCode(t, e, newTestRequest(`{"channel":"fs:readFile","args":["/etc/passwd"]}`), http.StatusNotFound)
	testCode(t, e, newTestRequest(`{"channel":"dialog:saveAudio"}`), http.StatusBadRequest)
	testCode(t, e, newTestRequest(`{"channel":"dialog:openFile","args":["x"]}`), http.StatusBadRequest)
	testCode(t, e, newTestRequest(`{`), http.StatusBadRequest)

	req := newTestRequest(`{"channel":"dialog:openFile"}`)
	req.Header.Set("Authorization", "Bearer wrong")
	testCode(t, e, req, http.StatusUnauthorized)

	req = newTestRequest(`{"channel":"dialog:openFile"}`)
	req.Header.Del("Authorization")
	testCode(t, e, req, http.StatusUnauthorized)

	testCode(t, e, httptest.NewRequest(http.MethodGet, "/live", nil), http.StatusOK)
}

func TestClientRoundTrip(t *testing.T) {
	ex := &fakeExporter{text: "hello", textOK: true, result: true}
	srv := httptest.NewServer(initRoutes(ex, testToken))
	defer srv.Close()

	c := NewClient(srv.URL, testToken)
	text, ok := c.OpenTextFile(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.True(t, c.SaveFeedback(context.Background(), "content"))
	assert.True(t, c.SaveAudio(context.Background(), "https://cdn/x.mp3"))

	ex.textOK, ex.result = false, false
	_, ok = c.OpenTextFile(context.Background())
	assert.False(t, ok)
	assert.False(t, c.SaveAudio(context.Background(), "https://cdn/x.mp3"))

	bad := NewClient(srv.URL, "nope")
	assert.False(t, bad.SaveFeedback(context.Background(), "x"))
}

func TestListenServe(t *testing.T) {
	s, err := Listen("127.0.0.1:0", &fakeExporter{result: true})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	c := NewClient(s.URL(), s.Token())
	assert.True(t, c.SaveFeedback(context.Background(), "x"))

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
