package feedparser_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/feedparser"
)

const (
	parserTestJSONStatuses = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"科技博主","verified":true,"verified_type":0},"text":"hello <a href=\"/n/x\">@x</a>","created_at":"Tue May 06 10:00:00 +0800 2025","comments_count":3,"attitudes_count":"1.2万","reposts_count":1,"pics":[{"url":"https://example.com/pic0.jpg"}]},{"user":{"screen_name":"微博用户2"},"text":"second","created_at":"Tue May 06 09:00:00 +0800 2025","retweeted_status":{"user":{"screen_name":"origin"},"text":"quoted","created_at":"Mon May 05 09:00:00 +0800 2025"}}]}}`
	parserTestJSONEmptyList = `{"ok":1,"data":{"statuses":[]}}`
	parserTestJSONNoPath    = `{"ok":0,"msg":"login required"}`
	parserTestRenderObject  = `<html><head><script>var config = {};</script><script>
var $render_data = [{
    "status": {"user":{"screen_name":"网页用户"},"text":"from html","created_at":"Tue May 06 08:00:00 +0800 2025","comments_count":5}
}][0] || {};
</script></head><body></body></html>`
	parserTestRenderArray = `<html><script>var $render_data = [{"status":[{"text":"a"},{"text":"b"}]}][0] || {};</script></html>`
	parserTestRenderNoStatus = `<html><script>var $render_data = [{"other":1}][0] || {};</script></html>`
	parserTestPlainHTML      = `<html><head><title>login</title></head><body>please sign in</body></html>`
	parserTestMalformedArray = `<html><script>var $render_data = [{"status": }][0];</script></html>`
	parserTestStringVerified = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"alice","verified":"1","verified_type":"0"},"text":"hi"}]}}`
	parserTestKeyedPictures  = `{"ok":1,"data":{"statuses":[{"user":{"screen_name":"bob","verified_type":-1},"text":"pics","pics":{"1":{"url":"https://example.com/b.jpg"},"0":{"url":"https://example.com/a.jpg"}},"page_info":{"type":"video","media_info":{"duration":"12.5"}}}]}}`
	parserTestOneBadRecord   = `{"ok":1,"data":{"statuses":[{"text":"first"},{"text":["not","a","string"]},{"text":"third"}]}}`
	parserTestAllBadRecords  = `{"ok":1,"data":{"statuses":[{"text":7},{"user":"nobody"}]}}`
)

func TestResponseParserJSONPath(t *testing.T) {
	t.Parallel()

	records, err := feedparser.NewResponseParser([]byte(parserTestJSONStatuses)).ExtractStatuses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []feed.TimelineRecord{
		{
			User:           feed.Author{ScreenName: "科技博主", Verified: true, VerifiedType: 0},
			Text:           `hello <a href="/n/x">@x</a>`,
			CreatedAt:      "Tue May 06 10:00:00 +0800 2025",
			CommentsCount:  3,
			AttitudesCount: 12000,
			RepostsCount:   1,
			Pictures:       []feed.Picture{{URL: "https://example.com/pic0.jpg"}},
		},
		{
			User:      feed.Author{ScreenName: "微博用户2"},
			Text:      "second",
			CreatedAt: "Tue May 06 09:00:00 +0800 2025",
			Retweeted: &feed.TimelineRecord{
				User:      feed.Author{ScreenName: "origin"},
				Text:      "quoted",
				CreatedAt: "Mon May 05 09:00:00 +0800 2025",
			},
		},
	}
	if !reflect.DeepEqual(records, expected) {
		t.Fatalf("unexpected records:\n got %+v\nwant %+v", records, expected)
	}
}

func TestResponseParserFallbacks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		body          string
		expectedTexts []string
		expectError   bool
	}{
		{name: "empty status list is valid", body: parserTestJSONEmptyList, expectedTexts: []string{}},
		{name: "render data object", body: parserTestRenderObject, expectedTexts: []string{"from html"}},
		{name: "render data array", body: parserTestRenderArray, expectedTexts: []string{"a", "b"}},
		{name: "json without status path", body: parserTestJSONNoPath, expectError: true},
		{name: "render data without status", body: parserTestRenderNoStatus, expectError: true},
		{name: "plain html", body: parserTestPlainHTML, expectError: true},
		{name: "malformed render data", body: parserTestMalformedArray, expectError: true},
		{name: "empty body", body: "", expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			records, err := feedparser.NewResponseParser([]byte(testCase.body)).ExtractStatuses()
			if testCase.expectError {
				if !errors.Is(err, feedparser.ErrUnrecognizedFormat) {
					t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
				}
				if records != nil {
					t.Fatalf("expected no records on failure, got %d", len(records))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != len(testCase.expectedTexts) {
				t.Fatalf("expected %d records, got %d", len(testCase.expectedTexts), len(records))
			}
			for index, record := range records {
				if record.Text != testCase.expectedTexts[index] {
					t.Fatalf("record %d: expected text %q, got %q", index, testCase.expectedTexts[index], record.Text)
				}
			}
		})
	}
}

func TestResponseParserRenderDataCounts(t *testing.T) {
	t.Parallel()

	records, err := feedparser.NewResponseParser([]byte(parserTestRenderObject)).ExtractRenderDataStatuses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].User.ScreenName != "网页用户" || records[0].CommentsCount != 5 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestResponseParserJSONMissingPath(t *testing.T) {
	t.Parallel()

	_, err := feedparser.NewResponseParser([]byte(parserTestJSONNoPath)).ExtractJSONStatuses()
	if !errors.Is(err, feedparser.ErrMissingStatuses) {
		t.Fatalf("expected ErrMissingStatuses, got %v", err)
	}
}

func TestResponseParserToleratesFieldShapes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		expected feed.TimelineRecord
	}{
		{
			name:     "verified fields as strings",
			body:     parserTestStringVerified,
			expected: feed.TimelineRecord{User: feed.Author{ScreenName: "alice", Verified: true, VerifiedType: 0}, Text: "hi"},
		},
		{
			name: "pictures keyed by position and string duration",
			body: parserTestKeyedPictures,
			expected: feed.TimelineRecord{
				User:     feed.Author{ScreenName: "bob", VerifiedType: -1},
				Text:     "pics",
				Pictures: []feed.Picture{{URL: "https://example.com/a.jpg"}, {URL: "https://example.com/b.jpg"}},
				PageInfo: &feed.PageInfo{Type: "video", MediaInfo: &feed.MediaInfo{Duration: 12.5}},
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			parser := feedparser.NewResponseParser([]byte(testCase.body))
			records, err := parser.ExtractJSONStatuses()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(parser.Skipped()) != 0 {
				t.Fatalf("expected no skipped records, got %v", parser.Skipped())
			}
			if !reflect.DeepEqual(records, []feed.TimelineRecord{testCase.expected}) {
				t.Fatalf("unexpected records:\n got %+v\nwant %+v", records, testCase.expected)
			}
		})
	}
}

func TestResponseParserSkipsUndecodableRecords(t *testing.T) {
	t.Parallel()

	parser := feedparser.NewResponseParser([]byte(parserTestOneBadRecord))
	records, err := parser.ExtractStatuses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[0].Text != "first" || records[1].Text != "third" {
		t.Fatalf("expected the two valid records, got %+v", records)
	}
	if len(parser.Skipped()) != 1 {
		t.Fatalf("expected one skipped record, got %v", parser.Skipped())
	}
}

func TestResponseParserReportsBothFailures(t *testing.T) {
	t.Parallel()

	_, err := feedparser.NewResponseParser([]byte(parserTestAllBadRecords)).ExtractStatuses()
	if !errors.Is(err, feedparser.ErrUnrecognizedFormat) {
		t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
	}
	if !errors.Is(err, feedparser.ErrUndecodableStatuses) {
		t.Fatalf("expected the json failure to be carried along, got %v", err)
	}
}
