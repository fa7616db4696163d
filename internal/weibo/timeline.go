package weibo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/purell"
	"go.uber.org/zap"

	"github.com/hyperweibo/hyperweibo/internal/cache"
	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/feedparser"
	"github.com/hyperweibo/hyperweibo/internal/mockdata"
)

const (
	homeTimelinePath  = "/feed/friends"
	groupTimelinePath = "/feed/group"
	pageParameter     = "page"
	groupParameter    = "gid"
	pageKeyFormat     = "page_%d"
	groupKeyFormat    = "%s_page_%d"
	flightKeyFormat   = "%s/%s"

	cacheKeyNormalization = purell.FlagsSafe |
		purell.FlagsUsuallySafeNonGreedy |
		purell.FlagRemoveDirectoryIndex |
		purell.FlagRemoveFragment |
		purell.FlagSortQuery

	logMessageTimelineFailed     = "timeline request failed"
	logMessageTimelineMock       = "serving mock timeline records"
	logMessageSpecialFocusAbsent = "special focus group not found"
	logMessageHTMLFallback       = "json body unrecognized, trying html render data"
	logMessageRecordsSkipped     = "skipped undecodable timeline records"
	logFieldCategory             = "category"
	logFieldKey                  = "key"
	logFieldGroupName            = "group_name"
	logFieldRecordCount          = "record_count"
	logFieldMockGroups           = "mock_groups"
	logFieldSkippedCount         = "skipped_count"
	logFieldCauses               = "causes"
)

// ViewKind selects which timeline a View shows.
type ViewKind int

const (
	// ViewHome is the home timeline.
	ViewHome ViewKind = iota
	// ViewSpecialFocus is the special focus group timeline.
	ViewSpecialFocus
	// ViewGroup is an arbitrary group timeline.
	ViewGroup
)

// View identifies one timeline page.
type View struct {
	Kind    ViewKind
	GroupID string
	Page    int
}

type timelineRequest struct {
	category cache.Category
	key      string
	path     string
	params   map[string]string
	mockSize int
}

// HomeTimeline returns a page of the home timeline. It never fails; mock records replace unavailable data.
func (client *Client) HomeTimeline(ctx context.Context, page int) []feed.TimelineRecord {
	records, _ := client.homeTimeline(ctx, page)
	return records
}

// GroupTimeline returns a page of a group timeline. When groupID is the special focus group the
// special focus cache slot for the page is filled as well.
func (client *Client) GroupTimeline(ctx context.Context, groupID string, page int) []feed.TimelineRecord {
	records, _ := client.groupTimeline(ctx, groupID, page)
	return records
}

// SpecialFocus returns a page of the special focus group, located by name in the group list.
func (client *Client) SpecialFocus(ctx context.Context, page int) []feed.TimelineRecord {
	records, _ := client.specialFocus(ctx, page)
	return records
}

// Fetch returns the records behind view. The boolean is true when the records are mock data, either
// because the client is in mock mode or because this particular fetch failed.
func (client *Client) Fetch(ctx context.Context, view View) ([]feed.TimelineRecord, bool) {
	switch view.Kind {
	case ViewSpecialFocus:
		return client.specialFocus(ctx, view.Page)
	case ViewGroup:
		return client.groupTimeline(ctx, view.GroupID, view.Page)
	default:
		return client.homeTimeline(ctx, view.Page)
	}
}

func (client *Client) homeTimeline(ctx context.Context, page int) ([]feed.TimelineRecord, bool) {
	return client.timeline(ctx, timelineRequest{
		category: cache.HomeTimeline,
		key:      pageKey(page),
		path:     homeTimelinePath,
		params:   map[string]string{pageParameter: strconv.Itoa(page)},
		mockSize: mockdata.HomeTimelineSize,
	})
}

func (client *Client) groupTimeline(ctx context.Context, groupID string, page int) ([]feed.TimelineRecord, bool) {
	records, mock := client.timeline(ctx, timelineRequest{
		category: cache.GroupTimeline,
		key:      groupKey(groupID, page),
		path:     groupTimelinePath,
		params:   map[string]string{groupParameter: groupID, pageParameter: strconv.Itoa(page)},
		mockSize: mockdata.GroupTimelineSize,
	})
	if mock {
		return records, true
	}
	if groups, groupsMock := client.groups(ctx); !groupsMock {
		if group, found := feed.FindGroupByID(groups, groupID); found && group.Name == client.specialFocusName {
			client.cache.Set(cache.SpecialFocus, pageKey(page), records)
		}
	}
	return records, false
}

// specialFocus serves mock records when the group list itself is mock, so a synthetic group
// identifier never reaches the platform.
func (client *Client) specialFocus(ctx context.Context, page int) ([]feed.TimelineRecord, bool) {
	if client.MockMode() {
		return client.mock.Records(mockdata.GroupTimelineSize), true
	}
	if records, found := client.cachedRecords(cache.SpecialFocus, pageKey(page)); found {
		return records, false
	}

	groups, groupsMock := client.groups(ctx)
	group, found := feed.FindGroupByName(groups, client.specialFocusName)
	if groupsMock || !found {
		client.logger.Warn(logMessageSpecialFocusAbsent,
			zap.String(logFieldGroupName, client.specialFocusName),
			zap.Bool(logFieldMockGroups, groupsMock),
		)
		return client.mock.Records(mockdata.GroupTimelineSize), true
	}
	return client.groupTimeline(ctx, group.ID, page)
}

// Invalidate drops the cached page behind view, including its scraped HTML entry.
func (client *Client) Invalidate(view View) {
	switch view.Kind {
	case ViewSpecialFocus:
		client.cache.ClearKey(cache.SpecialFocus, pageKey(view.Page))
		if cached, found := client.cache.Get(cache.GroupList, cache.ScalarKey); found {
			groups, _ := cached.([]feed.Group)
			if group, exists := feed.FindGroupByName(groups, client.specialFocusName); exists {
				client.invalidateGroup(group.ID, view.Page)
			}
		}
	case ViewGroup:
		client.invalidateGroup(view.GroupID, view.Page)
	default:
		client.cache.ClearKey(cache.HomeTimeline, pageKey(view.Page))
		client.cache.ClearKey(cache.ParsedHTML, client.htmlCacheKey(homeTimelinePath, map[string]string{pageParameter: strconv.Itoa(view.Page)}))
	}
}

func (client *Client) invalidateGroup(groupID string, page int) {
	client.cache.ClearKey(cache.GroupTimeline, groupKey(groupID, page))
	client.cache.ClearKey(cache.ParsedHTML, client.htmlCacheKey(groupTimelinePath, map[string]string{
		groupParameter: groupID,
		pageParameter:  strconv.Itoa(page),
	}))
}

func (client *Client) timeline(ctx context.Context, request timelineRequest) ([]feed.TimelineRecord, bool) {
	if client.MockMode() {
		return client.mock.Records(request.mockSize), true
	}
	if records, found := client.cachedRecords(request.category, request.key); found {
		return records, false
	}

	records, err := client.fetchTimeline(ctx, request)
	if err != nil {
		return client.mockTimeline(request, err), true
	}
	client.cache.Set(request.category, request.key, records)
	return records, false
}

func (client *Client) mockTimeline(request timelineRequest, cause error) []feed.TimelineRecord {
	client.logger.Warn(logMessageTimelineMock,
		zap.String(logFieldCategory, string(request.category)),
		zap.String(logFieldKey, request.key),
		zap.Int(logFieldRecordCount, request.mockSize),
		zap.Error(cause),
	)
	return client.mock.Records(request.mockSize)
}

// fetchTimeline collapses identical in-flight requests.
func (client *Client) fetchTimeline(ctx context.Context, request timelineRequest) ([]feed.TimelineRecord, error) {
	flightKey := fmt.Sprintf(flightKeyFormat, request.category, request.key)
	result, err := client.collapse(ctx, flightKey, func(loadContext context.Context) (interface{}, error) {
		return client.requestWithReauth(loadContext, request)
	})
	if err != nil {
		return nil, err
	}
	records, _ := result.([]feed.TimelineRecord)
	return records, nil
}

// requestWithReauth performs the request and, on failure, reauthenticates at most maxReauthRetries times.
// A failed reauthentication switches the client to mock data.
func (client *Client) requestWithReauth(ctx context.Context, request timelineRequest) ([]feed.TimelineRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= maxReauthRetries; attempt++ {
		if attempt > 0 {
			if err := client.reauthenticate(ctx, attempt); err != nil {
				client.degrade(err)
				return nil, fmt.Errorf("%w; reauthentication: %w", lastErr, err)
			}
		}

		records, err := client.requestStatuses(ctx, request)
		if err == nil {
			return records, nil
		}
		lastErr = err
		client.logger.Warn(logMessageTimelineFailed,
			zap.String(logFieldCategory, string(request.category)),
			zap.String(logFieldKey, request.key),
			zap.Int(logFieldAttempt, attempt),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, lastErr
}

func (client *Client) requestStatuses(ctx context.Context, request timelineRequest) ([]feed.TimelineRecord, error) {
	response, err := client.get(ctx, request.path, request.params, client.requestTimeout)
	if err != nil {
		return nil, err
	}

	parser := feedparser.NewResponseParser(response.Body())
	records, jsonErr := parser.ExtractJSONStatuses()
	if skipped := parser.Skipped(); len(skipped) > 0 {
		client.logger.Warn(logMessageRecordsSkipped,
			zap.String(logFieldKey, request.key),
			zap.Int(logFieldSkippedCount, len(skipped)),
			zap.Errors(logFieldCauses, skipped),
		)
	}
	if jsonErr == nil {
		return records, nil
	}
	client.logger.Debug(logMessageHTMLFallback, zap.String(logFieldKey, request.key), zap.Error(jsonErr))

	htmlKey := client.htmlCacheKey(request.path, request.params)
	if cached, found := client.cachedRecords(cache.ParsedHTML, htmlKey); found {
		return cached, nil
	}
	records, err = parser.ExtractRenderDataStatuses()
	if err != nil {
		return nil, feedparser.JoinFallbackError(err, jsonErr)
	}
	client.cache.Set(cache.ParsedHTML, htmlKey, records)
	return records, nil
}

func (client *Client) cachedRecords(category cache.Category, key string) ([]feed.TimelineRecord, bool) {
	cached, found := client.cache.Get(category, key)
	if !found {
		return nil, false
	}
	records, valid := cached.([]feed.TimelineRecord)
	return records, valid
}

// htmlCacheKey is the normalized request URL with its query parameters sorted.
func (client *Client) htmlCacheKey(path string, params map[string]string) string {
	target := *client.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	values := url.Values{}
	for name, value := range params {
		values.Set(name, value)
	}
	target.RawQuery = values.Encode()
	return purell.NormalizeURL(&target, cacheKeyNormalization)
}

func pageKey(page int) string {
	return fmt.Sprintf(pageKeyFormat, page)
}

func groupKey(groupID string, page int) string {
	return fmt.Sprintf(groupKeyFormat, groupID, page)
}
