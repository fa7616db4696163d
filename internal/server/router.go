package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
	"github.com/hyperweibo/hyperweibo/internal/render"
	"github.com/hyperweibo/hyperweibo/internal/weibo"
)

const (
	homeRoutePath          = "/"
	specialRoutePath       = "/special"
	groupRoutePath         = "/groups/:gid"
	timelineAPIRoutePath   = "/api/timeline"
	groupsAPIRoutePath     = "/api/groups"
	userAPIRoutePath       = "/api/user"
	prefetchAPIRoutePath   = "/api/prefetch"
	prefetchTaskRoutePath  = "/api/prefetch/:task"
	healthRoutePath        = "/healthz"
	groupIDParameter       = "gid"
	taskParameter          = "task"
	pageQueryParameter     = "page"
	pagesQueryParameter    = "pages"
	viewQueryParameter     = "view"
	refreshQueryParameter  = "refresh"
	viewNameHome           = "home"
	viewNameSpecial        = "special"
	viewNameGroup          = "group"
	htmlContentType        = "text/html; charset=utf-8"
	healthStatusKey        = "status"
	healthStatusOK         = "ok"
	errorKey               = "error"
	ginModeRelease         = "release"
	defaultPrefetchPages   = 3
	maximumPrefetchPages   = 10
	errMessageMissingData  = "router requires a timeline source"
	errMessageInvalidPage  = "page must be a positive integer"
	errMessageInvalidPages = "pages must be between 1 and 10"
	errMessageInvalidView  = "view must be home, special or group"
	errMessageMissingGroup = "group view requires gid"
	errMessageUnknownGroup = "group not found"
	errMessageRenderFailed = "timeline page rendering failed"
	errMessageServedMock   = "served mock records"
	logMessageRenderFailed = "timeline render failure"
	logMessagePrefetchDone = "prefetch task finished"
	logFieldTask           = "task"
	logFieldFailures       = "failures"
)

var (
	errMissingSource = errors.New(errMessageMissingData)
	errInvalidPage   = errors.New(errMessageInvalidPage)
	errInvalidPages  = errors.New(errMessageInvalidPages)
	errInvalidView   = errors.New(errMessageInvalidView)
	errMissingGroup  = errors.New(errMessageMissingGroup)
	errUnknownGroup  = errors.New(errMessageUnknownGroup)
	errServedMock    = errors.New(errMessageServedMock)
)

// TimelineSource provides the data behind every route. *weibo.Client satisfies it.
type TimelineSource interface {
	// Fetch reports whether the returned records are mock data.
	Fetch(ctx context.Context, view weibo.View) ([]feed.TimelineRecord, bool)
	Invalidate(view weibo.View)
	Groups(ctx context.Context) []feed.Group
	UserInfo(ctx context.Context) feed.UserInfo
}

// RouterConfig configures the preview routes.
type RouterConfig struct {
	Source   TimelineSource
	Language i18n.Language
	Catalog  i18n.Catalog
	Now      func() time.Time
	Logger   *zap.Logger

	// PrefetchPacing spaces the page requests of a prefetch task.
	PrefetchPacing PacingConfig
}

// TimelineResponse is the JSON body of the timeline API.
type TimelineResponse struct {
	View    string                `json:"view"`
	GroupID string                `json:"gid,omitempty"`
	Page    int                   `json:"page"`
	Mock    bool                  `json:"mock"`
	Records []feed.TimelineRecord `json:"records"`
}

// NewRouter constructs a Gin engine serving timeline pages, their JSON counterparts and a health check.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Source == nil {
		return nil, errMissingSource
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	language := configuration.Language
	if language != i18n.LanguageEnglish {
		language = i18n.LanguageChinese
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := timelineHandler{
		source:   configuration.Source,
		language: language,
		catalog:  configuration.Catalog,
		now:      now,
		logger:   logger,
		tracker:  newPrefetchTracker(),
		spacing:  newPageSpacing(configuration.PrefetchPacing),
	}

	engine.GET(homeRoutePath, handler.servePage(viewNameHome))
	engine.GET(specialRoutePath, handler.servePage(viewNameSpecial))
	engine.GET(groupRoutePath, handler.servePage(viewNameGroup))
	engine.GET(timelineAPIRoutePath, handler.timeline)
	engine.GET(groupsAPIRoutePath, handler.groups)
	engine.GET(userAPIRoutePath, handler.user)
	engine.POST(prefetchAPIRoutePath, handler.startPrefetch)
	engine.GET(prefetchTaskRoutePath, handler.prefetchStatus)
	engine.GET(healthRoutePath, handler.healthStatus)

	return engine, nil
}

type timelineHandler struct {
	source   TimelineSource
	language i18n.Language
	catalog  i18n.Catalog
	now      func() time.Time
	logger   *zap.Logger
	tracker  *prefetchTracker
	spacing  *pageSpacing
}

func (handler timelineHandler) servePage(viewName string) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		ctx := ginContext.Request.Context()
		view, groups, err := handler.resolveView(ctx, viewName, ginContext.Param(groupIDParameter), ginContext.Query(pageQueryParameter))
		if err != nil {
			ginContext.String(statusForError(err), err.Error())
			return
		}
		if ginContext.Query(refreshQueryParameter) != "" {
			handler.source.Invalidate(view)
		}
		records, mock := handler.source.Fetch(ctx, view)

		var page bytes.Buffer
		renderErr := render.WriteHTML(&page, render.Page{
			Language: handler.language,
			Catalog:  handler.catalog,
			Title:    fmt.Sprintf(handler.catalog.PageTitleFormat, handler.viewTitle(view, groups), view.Page),
			Page:     view.Page,
			Mock:     mock,
			Groups:   groups,
			Records:  records,
			Now:      handler.now(),
		})
		if renderErr != nil {
			handler.logger.Error(logMessageRenderFailed, zap.Error(renderErr))
			ginContext.String(http.StatusInternalServerError, errMessageRenderFailed)
			return
		}
		ginContext.Data(http.StatusOK, htmlContentType, page.Bytes())
	}
}

func (handler timelineHandler) timeline(ginContext *gin.Context) {
	ctx := ginContext.Request.Context()
	viewName := ginContext.DefaultQuery(viewQueryParameter, viewNameHome)
	view, _, err := handler.resolveView(ctx, viewName, ginContext.Query(groupIDParameter), ginContext.Query(pageQueryParameter))
	if err != nil {
		ginContext.JSON(statusForError(err), map[string]string{errorKey: err.Error()})
		return
	}
	if ginContext.Query(refreshQueryParameter) != "" {
		handler.source.Invalidate(view)
	}
	records, mock := handler.source.Fetch(ctx, view)
	if records == nil {
		records = []feed.TimelineRecord{}
	}
	ginContext.JSON(http.StatusOK, TimelineResponse{
		View:    viewName,
		GroupID: view.GroupID,
		Page:    view.Page,
		Mock:    mock,
		Records: records,
	})
}

func (handler timelineHandler) groups(ginContext *gin.Context) {
	groups := handler.source.Groups(ginContext.Request.Context())
	if groups == nil {
		groups = []feed.Group{}
	}
	ginContext.JSON(http.StatusOK, groups)
}

func (handler timelineHandler) user(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, handler.source.UserInfo(ginContext.Request.Context()))
}

// startPrefetch refreshes the first pages of a view in the background and returns a task snapshot.
func (handler timelineHandler) startPrefetch(ginContext *gin.Context) {
	requestContext := ginContext.Request.Context()
	viewName := ginContext.DefaultQuery(viewQueryParameter, viewNameHome)
	view, _, err := handler.resolveView(requestContext, viewName, ginContext.Query(groupIDParameter), "")
	if err != nil {
		ginContext.JSON(statusForError(err), map[string]string{errorKey: err.Error()})
		return
	}
	pages := defaultPrefetchPages
	if rawPages := ginContext.Query(pagesQueryParameter); rawPages != "" {
		parsed, parseErr := strconv.Atoi(rawPages)
		if parseErr != nil || parsed < 1 || parsed > maximumPrefetchPages {
			ginContext.JSON(http.StatusBadRequest, map[string]string{errorKey: errInvalidPages.Error()})
			return
		}
		pages = parsed
	}

	snapshot := handler.tracker.CreateTask(pages)
	ctx := context.WithoutCancel(requestContext)
	go handler.prefetch(ctx, snapshot.Identifier, view, pages)
	ginContext.JSON(http.StatusAccepted, snapshot)
}

func (handler timelineHandler) prefetch(ctx context.Context, taskIdentifier string, view weibo.View, pages int) {
	failures := 0
	for page := 1; page <= pages; page++ {
		if err := waitForPage(ctx, handler.spacing.gapBefore(page)); err != nil {
			break
		}
		target := view
		target.Page = page
		handler.source.Invalidate(target)
		var pageErr error
		if _, mock := handler.source.Fetch(ctx, target); mock {
			pageErr = errServedMock
			failures++
		}
		handler.tracker.RecordPage(taskIdentifier, page, pageErr)
	}
	handler.tracker.CompleteTask(taskIdentifier, failures > 0)
	handler.logger.Info(logMessagePrefetchDone, zap.String(logFieldTask, taskIdentifier), zap.Int(logFieldFailures, failures))
}

func (handler timelineHandler) prefetchStatus(ginContext *gin.Context) {
	snapshot, exists := handler.tracker.TaskSnapshot(ginContext.Param(taskParameter))
	if !exists {
		ginContext.JSON(http.StatusNotFound, map[string]string{errorKey: prefetchTaskNotFoundMessage})
		return
	}
	ginContext.JSON(http.StatusOK, snapshot)
}

func (handler timelineHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

// resolveView turns route and query values into a View. Group views are checked against the group
// list, which is returned for navigation.
func (handler timelineHandler) resolveView(ctx context.Context, viewName string, groupID string, rawPage string) (weibo.View, []feed.Group, error) {
	page := 1
	if rawPage != "" {
		parsed, err := strconv.Atoi(rawPage)
		if err != nil || parsed < 1 {
			return weibo.View{}, nil, errInvalidPage
		}
		page = parsed
	}

	groups := handler.source.Groups(ctx)
	switch viewName {
	case viewNameHome:
		return weibo.View{Kind: weibo.ViewHome, Page: page}, groups, nil
	case viewNameSpecial:
		return weibo.View{Kind: weibo.ViewSpecialFocus, Page: page}, groups, nil
	case viewNameGroup:
		if groupID == "" {
			return weibo.View{}, nil, errMissingGroup
		}
		if _, found := feed.FindGroupByID(groups, groupID); !found {
			return weibo.View{}, nil, fmt.Errorf("%w: %s", errUnknownGroup, groupID)
		}
		return weibo.View{Kind: weibo.ViewGroup, GroupID: groupID, Page: page}, groups, nil
	default:
		return weibo.View{}, nil, errInvalidView
	}
}

func (handler timelineHandler) viewTitle(view weibo.View, groups []feed.Group) string {
	switch view.Kind {
	case weibo.ViewSpecialFocus:
		return handler.catalog.SpecialFocusName
	case weibo.ViewGroup:
		if group, found := feed.FindGroupByID(groups, view.GroupID); found {
			return group.Name
		}
		return view.GroupID
	default:
		return handler.catalog.HomeName
	}
}

func statusForError(err error) int {
	if errors.Is(err, errUnknownGroup) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
