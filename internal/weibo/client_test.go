package weibo_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperweibo/hyperweibo/internal/cache"
	"github.com/hyperweibo/hyperweibo/internal/credentials"
	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/weibo"
)

const (
	clientTestCookieString      = "SUB=abc;XSRF-TOKEN=xyz"
	clientTestSpecialGroupID    = "G1"
	clientTestColleagueGroupID  = "G2"
	clientTestMockText          = "synthetic record"
	clientTestMockScreenName    = "synthetic user"
	clientTestMockGroupID       = "synthetic-group"
	clientTestStatusesBody      = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"alice","verified":true},"text":"hello from json","created_at":"Mon Jan 02 15:04:05 +0800 2006","comments_count":1,"attitudes_count":"1.2万","reposts_count":3}]}}`
	clientTestGroupStatusesBody = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"carol"},"text":"hello from group","created_at":"Mon Jan 02 15:04:05 +0800 2006"}]}}`
	clientTestRenderDataBody    = `<html><head></head><body><script>var $render_data = [{"status":{"user":{"screen_name":"bob"},"text":"hello from html","created_at":"Mon Jan 02 15:04:05 +0800 2006"}}][0] || {};</script></body></html>`
	clientTestUnrecognizedBody  = `<html><body>maintenance</body></html>`
	clientTestPartlyBrokenBody  = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"dave","verified_type":"0"},"text":"kept"},{"user":"broken","text":"dropped"}]}}`
	clientTestGroupListBody     = `{"ok":1,"data":{"groups":[{"gid":"G1","name":"特别关注"},{"gid":"G2","name":"同事"}]}}`
	clientTestProbeSuccessBody  = `{"ok":1}`
	clientTestAccountBody       = `{"ok":1,"data":{"login":true,"uid":1234567890,"nick":"alice"}}`
	clientTestProfileBody       = `{"ok":1,"data":{"cards":[{"card_group":[{"item_name":"昵称","item_content":"Alice"},{"item_name":"简介","item_content":"hello"},{"item_name":"粉丝","item_content":"1.5万"},{"item_name":"关注","item_content":"321"},{"item_name":"微博","item_content":42},{"item_name":"认证","item_content":"verified"}]}]}}`
	clientTestExpectedContainer = "2302831234567890_-_INFO"
	clientTestHomePath          = "/feed/friends"
	clientTestGroupPath         = "/feed/group"
	clientTestConfigListPath    = "/api/config/list"
	clientTestAccountPath       = "/api/config"
	clientTestContainerPath     = "/api/container/getIndex"
)

type stubMockSource struct {
	mutex       sync.Mutex
	recordCalls []int
}

func (source *stubMockSource) Records(count int) []feed.TimelineRecord {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	source.recordCalls = append(source.recordCalls, count)
	records := make([]feed.TimelineRecord, count)
	for index := range records {
		records[index] = feed.TimelineRecord{Text: clientTestMockText}
	}
	return records
}

func (source *stubMockSource) User() feed.UserInfo {
	return feed.UserInfo{ScreenName: clientTestMockScreenName}
}

func (source *stubMockSource) Groups() []feed.Group {
	return []feed.Group{{ID: clientTestMockGroupID, Name: clientTestMockGroupID}}
}

func (source *stubMockSource) calls() []int {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	return append([]int(nil), source.recordCalls...)
}

type recordingStore struct {
	calls atomic.Int32
	set   credentials.Set
}

func (store *recordingStore) Cookies(ctx context.Context, domainSuffix string) (credentials.Set, error) {
	store.calls.Add(1)
	return store.set, nil
}

type recordingReauthenticator struct {
	calls atomic.Int32
	err   error
}

func (reauthenticator *recordingReauthenticator) PromptLogin(ctx context.Context) error {
	reauthenticator.calls.Add(1)
	return reauthenticator.err
}

type recordedRequest struct {
	path    string
	query   string
	xsrf    string
	cookies map[string]string
}

type recordingHandler struct {
	mutex    sync.Mutex
	requests []recordedRequest
	respond  func(writer http.ResponseWriter, request *http.Request, hit int)
}

func (handler *recordingHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	cookies := make(map[string]string)
	for _, cookie := range request.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}
	handler.mutex.Lock()
	handler.requests = append(handler.requests, recordedRequest{
		path:    request.URL.Path,
		query:   request.URL.RawQuery,
		xsrf:    request.Header.Get("X-XSRF-TOKEN"),
		cookies: cookies,
	})
	hit := len(handler.requests)
	handler.mutex.Unlock()
	handler.respond(writer, request, hit)
}

func (handler *recordingHandler) recorded() []recordedRequest {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	return append([]recordedRequest(nil), handler.requests...)
}

func (handler *recordingHandler) pathHits(path string) int {
	count := 0
	for _, request := range handler.recorded() {
		if request.path == path {
			count++
		}
	}
	return count
}

func newRecordingServer(t *testing.T, respond func(http.ResponseWriter, *http.Request, int)) (*httptest.Server, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{respond: respond}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, handler
}

func writeBody(writer http.ResponseWriter, statusCode int, body string) {
	writer.WriteHeader(statusCode)
	_, _ = writer.Write([]byte(body))
}

func newTestClient(t *testing.T, configuration weibo.Config) *weibo.Client {
	t.Helper()
	client, err := weibo.NewClient(configuration)
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return client
}

func TestConnectWithCookieStringSkipsBrowserStore(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, clientTestStatusesBody)
	})
	store := &recordingStore{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome, CookieString: clientTestCookieString, UseCookieString: true},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: store},
		}),
		Mock: &stubMockSource{},
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if len(handler.recorded()) != 0 {
		t.Fatalf("expected no probe for an explicit cookie string, got %+v", handler.recorded())
	}

	records := client.HomeTimeline(context.Background(), 1)
	if len(records) != 1 || records[0].Text != "hello from json" {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].AttitudesCount != 12000 {
		t.Fatalf("expected abbreviated count to decode to 12000, got %d", records[0].AttitudesCount)
	}
	if store.calls.Load() != 0 {
		t.Fatalf("expected browser store to be untouched, got %d calls", store.calls.Load())
	}

	requests := handler.recorded()
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	request := requests[0]
	if request.path != clientTestHomePath || request.query != "page=1" {
		t.Fatalf("unexpected request %s?%s", request.path, request.query)
	}
	if request.xsrf != "xyz" {
		t.Fatalf("expected X-XSRF-TOKEN xyz, got %q", request.xsrf)
	}
	if len(request.cookies) != 2 || request.cookies["SUB"] != "abc" || request.cookies["XSRF-TOKEN"] != "xyz" {
		t.Fatalf("unexpected cookies %v", request.cookies)
	}
}

func TestConnectProbesBrowserCookies(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, clientTestProbeSuccessBody)
	})
	store := &recordingStore{set: credentials.Set{"SUB": "abc"}}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserFirefox},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserFirefox: store},
		}),
		Mock: &stubMockSource{},
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if store.calls.Load() != 1 {
		t.Fatalf("expected one browser store call, got %d", store.calls.Load())
	}
	if handler.pathHits(clientTestConfigListPath) != 1 {
		t.Fatalf("expected one probe, got %+v", handler.recorded())
	}
	if client.MockMode() {
		t.Fatalf("expected live mode after a valid probe")
	}
}

func TestConnectDegradesWhenReauthenticationFails(t *testing.T) {
	t.Parallel()

	server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, `{"ok":-100}`)
	})
	reauthenticator := &recordingReauthenticator{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: &recordingStore{}},
		}),
		Reauthenticator: reauthenticator,
		Mock:            &stubMockSource{},
	})

	err := client.Connect(context.Background())
	if !errors.Is(err, weibo.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
	if reauthenticator.calls.Load() != 1 {
		t.Fatalf("expected exactly one reauthentication, got %d", reauthenticator.calls.Load())
	}
	if !client.MockMode() {
		t.Fatalf("expected mock mode after failed reauthentication")
	}
}

func TestSpecialFocusDispatchesToGroupTimeline(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		switch request.URL.Path {
		case clientTestConfigListPath:
			writeBody(writer, http.StatusOK, clientTestGroupListBody)
		case clientTestGroupPath:
			writeBody(writer, http.StatusOK, clientTestGroupStatusesBody)
		default:
			writeBody(writer, http.StatusNotFound, "")
		}
	})
	store := cache.New(cache.Config{})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Cache: store, Mock: &stubMockSource{}})

	records := client.SpecialFocus(context.Background(), 2)
	if len(records) != 1 || records[0].Text != "hello from group" {
		t.Fatalf("unexpected records %+v", records)
	}

	var groupQueries []string
	for _, request := range handler.recorded() {
		if request.path == clientTestGroupPath {
			groupQueries = append(groupQueries, request.query)
		}
	}
	if len(groupQueries) != 1 || !strings.Contains(groupQueries[0], "gid="+clientTestSpecialGroupID) || !strings.Contains(groupQueries[0], "page=2") {
		t.Fatalf("expected one group request for %s page 2, got %v", clientTestSpecialGroupID, groupQueries)
	}

	cached, found := store.Get(cache.SpecialFocus, "page_2")
	if !found {
		t.Fatalf("expected special focus cache slot for page 2")
	}
	if cachedRecords, valid := cached.([]feed.TimelineRecord); !valid || len(cachedRecords) != 1 || cachedRecords[0].Text != "hello from group" {
		t.Fatalf("unexpected special focus cache value %+v", cached)
	}
	if _, found := store.Get(cache.GroupTimeline, clientTestSpecialGroupID+"_page_2"); !found {
		t.Fatalf("expected group timeline cache slot for %s", clientTestSpecialGroupID)
	}

	_ = client.SpecialFocus(context.Background(), 2)
	if handler.pathHits(clientTestGroupPath) != 1 {
		t.Fatalf("expected the second call to be served from cache")
	}
}

func TestGroupTimelineForOtherGroupLeavesSpecialFocusEmpty(t *testing.T) {
	t.Parallel()

	server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		switch request.URL.Path {
		case clientTestConfigListPath:
			writeBody(writer, http.StatusOK, clientTestGroupListBody)
		default:
			writeBody(writer, http.StatusOK, clientTestGroupStatusesBody)
		}
	})
	store := cache.New(cache.Config{})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Cache: store, Mock: &stubMockSource{}})

	_ = client.GroupTimeline(context.Background(), clientTestColleagueGroupID, 1)
	if _, found := store.Get(cache.SpecialFocus, "page_1"); found {
		t.Fatalf("expected special focus cache to stay empty for %s", clientTestColleagueGroupID)
	}
	if _, found := store.Get(cache.GroupTimeline, clientTestColleagueGroupID+"_page_1"); !found {
		t.Fatalf("expected group timeline cache slot for %s", clientTestColleagueGroupID)
	}
}

func TestMockModeNeverContactsTransport(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, clientTestStatusesBody)
	})
	store := cache.New(cache.Config{})
	store.Set(cache.HomeTimeline, "page_1", []feed.TimelineRecord{{Text: "cached"}})
	mockSource := &stubMockSource{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		UseMock: true,
		Cache:   store,
		Mock:    mockSource,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: &recordingStore{}},
		}),
	})

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	home := client.HomeTimeline(ctx, 1)
	group := client.GroupTimeline(ctx, clientTestSpecialGroupID, 1)
	special := client.SpecialFocus(ctx, 1)
	groups := client.Groups(ctx)
	user := client.UserInfo(ctx)

	if len(handler.recorded()) != 0 {
		t.Fatalf("expected no transport use, got %+v", handler.recorded())
	}
	if len(home) != 10 || home[0].Text != clientTestMockText {
		t.Fatalf("expected 10 mock home records, got %+v", home)
	}
	if len(group) != 5 || len(special) != 5 {
		t.Fatalf("expected 5 mock group records, got %d and %d", len(group), len(special))
	}
	if len(groups) != 1 || groups[0].ID != clientTestMockGroupID {
		t.Fatalf("expected mock groups, got %+v", groups)
	}
	if user.ScreenName != clientTestMockScreenName {
		t.Fatalf("expected mock user, got %+v", user)
	}
	if calls := mockSource.calls(); len(calls) != 3 {
		t.Fatalf("expected three mock record calls, got %v", calls)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		body       string
		block      bool
		expected   bool
	}{
		{name: "success", statusCode: http.StatusOK, body: clientTestProbeSuccessBody, expected: true},
		{name: "server error with success body", statusCode: http.StatusInternalServerError, body: clientTestProbeSuccessBody},
		{name: "empty success body", statusCode: http.StatusNoContent, body: ""},
		{name: "html body", statusCode: http.StatusOK, body: clientTestUnrecognizedBody},
		{name: "missing ok field", statusCode: http.StatusOK, body: `{"data":{}}`},
		{name: "ok is not one", statusCode: http.StatusOK, body: `{"ok":0}`},
		{name: "timeout", block: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
				if testCase.block {
					select {
					case <-request.Context().Done():
					case <-time.After(2 * time.Second):
					}
					return
				}
				writeBody(writer, testCase.statusCode, testCase.body)
			})
			client := newTestClient(t, weibo.Config{
				BaseURL:      server.URL,
				ProbeTimeout: 50 * time.Millisecond,
				Mock:         &stubMockSource{},
			})

			if result := client.Probe(context.Background()); result != testCase.expected {
				t.Fatalf("expected probe %v, got %v", testCase.expected, result)
			}
			if handler.pathHits(clientTestConfigListPath) != 1 {
				t.Fatalf("expected the probe to hit %s", clientTestConfigListPath)
			}
		})
	}
}

func TestHomeTimelineCachesRenderDataSeparately(t *testing.T) {
	t.Parallel()

	var serveUnrecognized atomic.Bool
	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		if serveUnrecognized.Load() {
			writeBody(writer, http.StatusOK, clientTestUnrecognizedBody)
			return
		}
		writeBody(writer, http.StatusOK, clientTestRenderDataBody)
	})
	store := cache.New(cache.Config{})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Cache: store, Mock: &stubMockSource{}})

	first := client.HomeTimeline(context.Background(), 3)
	if len(first) != 1 || first[0].Text != "hello from html" {
		t.Fatalf("unexpected records %+v", first)
	}
	if store.Len(cache.ParsedHTML) != 1 {
		t.Fatalf("expected one parsed html entry, got %d", store.Len(cache.ParsedHTML))
	}

	store.ClearKey(cache.HomeTimeline, "page_3")
	serveUnrecognized.Store(true)
	second := client.HomeTimeline(context.Background(), 3)
	if handler.pathHits(clientTestHomePath) != 2 {
		t.Fatalf("expected the second call to reach the server")
	}
	if len(second) != 1 || second[0].Text != "hello from html" {
		t.Fatalf("expected parsed html cache to serve the second call, got %+v", second)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, clientTestRenderDataBody)
	})
	store := cache.New(cache.Config{})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Cache: store, Mock: &stubMockSource{}})
	view := weibo.View{Kind: weibo.ViewHome, Page: 1}

	_, _ = client.Fetch(context.Background(), view)
	_, _ = client.Fetch(context.Background(), view)
	if handler.pathHits(clientTestHomePath) != 1 {
		t.Fatalf("expected a cached second fetch")
	}

	client.Invalidate(view)
	if store.Len(cache.ParsedHTML) != 0 {
		t.Fatalf("expected parsed html entry to be dropped")
	}
	_, _ = client.Fetch(context.Background(), view)
	if handler.pathHits(clientTestHomePath) != 2 {
		t.Fatalf("expected a refetch after invalidation")
	}
}

func TestTimelineFailureReauthenticatesOnceThenServesMock(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusInternalServerError, "")
	})
	reauthenticator := &recordingReauthenticator{}
	store := &recordingStore{set: credentials.Set{"SUB": "fresh"}}
	mockSource := &stubMockSource{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: store},
		}),
		Reauthenticator: reauthenticator,
		Mock:            mockSource,
	})

	records := client.HomeTimeline(context.Background(), 1)
	if len(records) != 10 || records[0].Text != clientTestMockText {
		t.Fatalf("expected mock records, got %+v", records)
	}
	if reauthenticator.calls.Load() != 1 {
		t.Fatalf("expected one reauthentication, got %d", reauthenticator.calls.Load())
	}
	if store.calls.Load() != 1 {
		t.Fatalf("expected browser cookies to be reloaded once, got %d", store.calls.Load())
	}
	if !client.MockMode() {
		t.Fatalf("expected mock mode after failed reauthentication")
	}

	hits := len(handler.recorded())
	_ = client.HomeTimeline(context.Background(), 2)
	if len(handler.recorded()) != hits {
		t.Fatalf("expected no transport use once in mock mode")
	}
}

func TestTimelineRetriesAfterSuccessfulReauthentication(t *testing.T) {
	t.Parallel()

	var timelineHits atomic.Int32
	server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		switch request.URL.Path {
		case clientTestConfigListPath:
			writeBody(writer, http.StatusOK, clientTestProbeSuccessBody)
		default:
			if timelineHits.Add(1) == 1 {
				writeBody(writer, http.StatusForbidden, "")
				return
			}
			writeBody(writer, http.StatusOK, clientTestStatusesBody)
		}
	})
	reauthenticator := &recordingReauthenticator{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: &recordingStore{set: credentials.Set{"SUB": "fresh"}}},
		}),
		Reauthenticator: reauthenticator,
		Mock:            &stubMockSource{},
	})

	records := client.HomeTimeline(context.Background(), 1)
	if len(records) != 1 || records[0].Text != "hello from json" {
		t.Fatalf("expected live records after reauthentication, got %+v", records)
	}
	if reauthenticator.calls.Load() != 1 || timelineHits.Load() != 2 {
		t.Fatalf("expected one reauthentication and one retry, got %d and %d", reauthenticator.calls.Load(), timelineHits.Load())
	}
	if client.MockMode() {
		t.Fatalf("expected live mode after successful reauthentication")
	}
}

func TestFetchReportsMockWhenRetryFailsAfterReauthentication(t *testing.T) {
	t.Parallel()

	server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		switch request.URL.Path {
		case clientTestConfigListPath:
			writeBody(writer, http.StatusOK, clientTestProbeSuccessBody)
		default:
			writeBody(writer, http.StatusBadGateway, "")
		}
	})
	reauthenticator := &recordingReauthenticator{}
	client := newTestClient(t, weibo.Config{
		BaseURL: server.URL,
		Hint:    credentials.Hint{Browser: credentials.BrowserChrome},
		Credentials: credentials.NewSource(credentials.Config{
			Stores: map[credentials.Browser]credentials.Store{credentials.BrowserChrome: &recordingStore{set: credentials.Set{"SUB": "fresh"}}},
		}),
		Reauthenticator: reauthenticator,
		Mock:            &stubMockSource{},
	})

	records, mock := client.Fetch(context.Background(), weibo.View{Kind: weibo.ViewHome, Page: 1})
	if !mock {
		t.Fatalf("expected the fetch to report mock records")
	}
	if len(records) != 10 || records[0].Text != clientTestMockText {
		t.Fatalf("expected mock records, got %+v", records)
	}
	if reauthenticator.calls.Load() != 1 {
		t.Fatalf("expected one reauthentication, got %d", reauthenticator.calls.Load())
	}
	if client.MockMode() {
		t.Fatalf("expected the client to stay live after a successful reauthentication")
	}
}

func TestFetchReportsLiveRecords(t *testing.T) {
	t.Parallel()

	server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		writeBody(writer, http.StatusOK, clientTestPartlyBrokenBody)
	})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Mock: &stubMockSource{}})

	records, mock := client.Fetch(context.Background(), weibo.View{Kind: weibo.ViewHome, Page: 1})
	if mock {
		t.Fatalf("expected live records")
	}
	if len(records) != 1 || records[0].Text != "kept" || records[0].User.ScreenName != "dave" {
		t.Fatalf("expected the decodable record only, got %+v", records)
	}
}

func TestSpecialFocusWithMockGroupsServesMock(t *testing.T) {
	t.Parallel()

	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		switch request.URL.Path {
		case clientTestConfigListPath:
			writeBody(writer, http.StatusBadGateway, "")
		default:
			writeBody(writer, http.StatusOK, clientTestGroupStatusesBody)
		}
	})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Mock: &stubMockSource{}})

	records, mock := client.Fetch(context.Background(), weibo.View{Kind: weibo.ViewSpecialFocus, Page: 1})
	if !mock || len(records) != 5 {
		t.Fatalf("expected 5 mock records, got mock=%v %+v", mock, records)
	}
	if handler.pathHits(clientTestGroupPath) != 0 {
		t.Fatalf("expected no group timeline request for a mock group")
	}
	if groups, groupsMock := client.GroupList(context.Background()); !groupsMock || len(groups) != 1 || groups[0].ID != clientTestMockGroupID {
		t.Fatalf("expected mock groups, got mock=%v %+v", groupsMock, groups)
	}
}

func TestCollapsedLoadSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{})
	release := make(chan struct{})
	var requestCancelled atomic.Bool
	server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
		if hit == 1 {
			close(arrived)
			select {
			case <-release:
			case <-request.Context().Done():
				requestCancelled.Store(true)
				return
			}
		}
		writeBody(writer, http.StatusOK, clientTestStatusesBody)
	})
	client := newTestClient(t, weibo.Config{BaseURL: server.URL, Mock: &stubMockSource{}})
	view := weibo.View{Kind: weibo.ViewHome, Page: 1}

	type fetchResult struct {
		records []feed.TimelineRecord
		mock    bool
	}
	firstContext, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan fetchResult, 1)
	go func() {
		records, mock := client.Fetch(firstContext, view)
		firstDone <- fetchResult{records: records, mock: mock}
	}()
	<-arrived
	cancelFirst()
	if first := <-firstDone; !first.mock {
		t.Fatalf("expected the cancelled caller to receive mock records")
	}

	secondDone := make(chan fetchResult, 1)
	go func() {
		records, mock := client.Fetch(context.Background(), view)
		secondDone <- fetchResult{records: records, mock: mock}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	second := <-secondDone
	if second.mock || len(second.records) != 1 || second.records[0].Text != "hello from json" {
		t.Fatalf("expected live records for the remaining caller, got mock=%v %+v", second.mock, second.records)
	}
	if requestCancelled.Load() {
		t.Fatalf("expected the shared request to outlive the cancelled caller")
	}
	if handler.pathHits(clientTestHomePath) != 1 {
		t.Fatalf("expected the second caller to join the in-flight request, got %d requests", handler.pathHits(clientTestHomePath))
	}
}

func TestGroups(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		statusCode     int
		body           string
		expectedIDs    []string
		expectedCached bool
	}{
		{name: "group list", statusCode: http.StatusOK, body: clientTestGroupListBody, expectedIDs: []string{clientTestSpecialGroupID, clientTestColleagueGroupID}, expectedCached: true},
		{name: "not ok", statusCode: http.StatusOK, body: `{"ok":0,"msg":"login"}`, expectedIDs: []string{}},
		{name: "server error", statusCode: http.StatusBadGateway, body: "", expectedIDs: []string{clientTestMockGroupID}},
		{name: "html body", statusCode: http.StatusOK, body: clientTestUnrecognizedBody, expectedIDs: []string{clientTestMockGroupID}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
				writeBody(writer, testCase.statusCode, testCase.body)
			})
			store := cache.New(cache.Config{})
			client := newTestClient(t, weibo.Config{BaseURL: server.URL, Cache: store, Mock: &stubMockSource{}})

			groups := client.Groups(context.Background())
			identifiers := make([]string, 0, len(groups))
			for _, group := range groups {
				identifiers = append(identifiers, group.ID)
			}
			if fmt.Sprint(identifiers) != fmt.Sprint(testCase.expectedIDs) {
				t.Fatalf("expected groups %v, got %v", testCase.expectedIDs, identifiers)
			}
			if _, cached := store.Get(cache.GroupList, cache.ScalarKey); cached != testCase.expectedCached {
				t.Fatalf("expected cached=%v, got %v", testCase.expectedCached, cached)
			}
		})
	}
}

func TestUserInfo(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		accountBody string
		profileCode int
		profileBody string
		expected    feed.UserInfo
	}{
		{
			name:        "full profile",
			accountBody: clientTestAccountBody,
			profileCode: http.StatusOK,
			profileBody: clientTestProfileBody,
			expected: feed.UserInfo{
				ScreenName:     "Alice",
				Description:    "hello",
				FollowersCount: 15000,
				FollowCount:    321,
				StatusesCount:  42,
				Verified:       true,
			},
		},
		{
			name:        "profile without cards",
			accountBody: clientTestAccountBody,
			profileCode: http.StatusOK,
			profileBody: `{"ok":1,"data":{}}`,
			expected:    feed.UserInfo{ScreenName: "alice", Description: weibo.EmptyDescription, VerifiedType: -1},
		},
		{
			name:        "profile with empty cards",
			accountBody: clientTestAccountBody,
			profileCode: http.StatusOK,
			profileBody: `{"ok":1,"data":{"cards":[]}}`,
			expected:    feed.UserInfo{ScreenName: weibo.UnknownScreenName, Description: weibo.EmptyDescription},
		},
		{
			name:        "signed out",
			accountBody: `{"ok":1,"data":{"login":false}}`,
			expected:    feed.UserInfo{ScreenName: clientTestMockScreenName},
		},
		{
			name:        "profile request fails",
			accountBody: clientTestAccountBody,
			profileCode: http.StatusInternalServerError,
			expected:    feed.UserInfo{ScreenName: clientTestMockScreenName},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server, handler := newRecordingServer(t, func(writer http.ResponseWriter, request *http.Request, hit int) {
				switch request.URL.Path {
				case clientTestAccountPath:
					writeBody(writer, http.StatusOK, testCase.accountBody)
				case clientTestContainerPath:
					writeBody(writer, testCase.profileCode, testCase.profileBody)
				default:
					writeBody(writer, http.StatusNotFound, "")
				}
			})
			client := newTestClient(t, weibo.Config{BaseURL: server.URL, Mock: &stubMockSource{}})

			info := client.UserInfo(context.Background())
			if info != testCase.expected {
				t.Fatalf("expected %+v, got %+v", testCase.expected, info)
			}
			for _, request := range handler.recorded() {
				if request.path == clientTestContainerPath && !strings.Contains(request.query, clientTestExpectedContainer) {
					t.Fatalf("expected container %s, got %s", clientTestExpectedContainer, request.query)
				}
			}
		})
	}
}
