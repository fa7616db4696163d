package weibo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperweibo/hyperweibo/internal/cache"
	"github.com/hyperweibo/hyperweibo/internal/feed"
)

const (
	accountConfigPath      = "/api/config"
	containerIndexPath     = "/api/container/getIndex"
	containerIDParameter   = "containerid"
	profileContainerFormat = "230283%s_-_INFO"
	groupListFlightKey     = "group-list"
	userInfoFlightKey      = "user-info"

	profileItemNickname    = "昵称"
	profileItemDescription = "简介"
	profileItemFollowers   = "粉丝"
	profileItemFollows     = "关注"
	profileItemStatuses    = "微博"
	profileItemVerified    = "认证"

	// UnknownScreenName is used when a signed-in profile has no nickname.
	UnknownScreenName = "未知用户"
	// EmptyDescription is used when a profile has no description.
	EmptyDescription = "暂无简介"

	basicProfileVerifiedType = -1

	errMessageDecodeGroups  = "decode group list"
	errMessageDecodeAccount = "decode account config"
	errMessageDecodeProfile = "decode profile container"

	logMessageGroupsFailed       = "group list request failed, serving mock groups"
	logMessageGroupsUnexpected   = "group list response has no groups"
	logMessageGroupsLoaded       = "group list loaded"
	logMessageUserInfoFailed     = "user info request failed, serving mock user"
	logMessageUserInfoSignedOut  = "account config reports no signed-in user, serving mock user"
	logMessageUserInfoBasic      = "profile container has no cards, using account config"
	logFieldGroupCount           = "group_count"
	logFieldUserIdentifierLength = "uid_length"
)

type groupListEnvelope struct {
	OK   *int `json:"ok"`
	Data *struct {
		Groups *[]feed.Group `json:"groups"`
	} `json:"data"`
}

type accountConfigEnvelope struct {
	Data *struct {
		Login bool            `json:"login"`
		UID   json.RawMessage `json:"uid"`
		Nick  *string         `json:"nick"`
	} `json:"data"`
}

type profileItem struct {
	Name    *string         `json:"item_name"`
	Content json.RawMessage `json:"item_content"`
}

type profileEnvelope struct {
	Data *struct {
		Cards *[]struct {
			CardGroup []profileItem `json:"card_group"`
		} `json:"cards"`
	} `json:"data"`
}

// Groups returns the signed-in user's groups. Request failures yield mock groups; a response without a
// group list yields an empty list.
func (client *Client) Groups(ctx context.Context) []feed.Group {
	groups, _ := client.groups(ctx)
	return groups
}

// GroupList is Groups that also reports whether the groups are mock data.
func (client *Client) GroupList(ctx context.Context) ([]feed.Group, bool) {
	return client.groups(ctx)
}

func (client *Client) groups(ctx context.Context) ([]feed.Group, bool) {
	if client.MockMode() {
		return client.mock.Groups(), true
	}
	if cached, found := client.cache.Get(cache.GroupList, cache.ScalarKey); found {
		if groups, valid := cached.([]feed.Group); valid {
			return groups, false
		}
	}

	result, err := client.collapse(ctx, groupListFlightKey, func(loadContext context.Context) (interface{}, error) {
		return client.requestGroups(loadContext)
	})
	if err != nil {
		client.logger.Warn(logMessageGroupsFailed, zap.Error(err))
		return client.mock.Groups(), true
	}
	groups, _ := result.([]feed.Group)
	return groups, false
}

func (client *Client) requestGroups(ctx context.Context) ([]feed.Group, error) {
	response, err := client.get(ctx, configListPath, nil, client.requestTimeout)
	if err != nil {
		return nil, err
	}

	var envelope groupListEnvelope
	if err := json.Unmarshal(response.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecodeGroups, err)
	}
	if envelope.OK == nil || *envelope.OK != okValueSuccess || envelope.Data == nil || envelope.Data.Groups == nil {
		client.logger.Warn(logMessageGroupsUnexpected, zap.Any(logFieldOK, envelope.OK))
		return []feed.Group{}, nil
	}

	groups := *envelope.Data.Groups
	if groups == nil {
		groups = []feed.Group{}
	}
	client.cache.Set(cache.GroupList, cache.ScalarKey, groups)
	client.logger.Debug(logMessageGroupsLoaded, zap.Int(logFieldGroupCount, len(groups)))
	return groups, nil
}

// UserInfo returns the signed-in user's profile, or a mock user when nobody is signed in or a request fails.
func (client *Client) UserInfo(ctx context.Context) feed.UserInfo {
	if client.MockMode() {
		return client.mock.User()
	}
	if cached, found := client.cache.Get(cache.UserInfo, cache.ScalarKey); found {
		if info, valid := cached.(feed.UserInfo); valid {
			return info
		}
	}

	result, err := client.collapse(ctx, userInfoFlightKey, func(loadContext context.Context) (interface{}, error) {
		return client.requestUserInfo(loadContext)
	})
	if err != nil {
		client.logger.Warn(logMessageUserInfoFailed, zap.Error(err))
		return client.mock.User()
	}
	info, valid := result.(*feed.UserInfo)
	if !valid || info == nil {
		client.logger.Warn(logMessageUserInfoSignedOut)
		return client.mock.User()
	}
	return *info
}

// requestUserInfo returns nil without an error when nobody is signed in.
func (client *Client) requestUserInfo(ctx context.Context) (*feed.UserInfo, error) {
	response, err := client.get(ctx, accountConfigPath, nil, client.requestTimeout)
	if err != nil {
		return nil, err
	}

	var account accountConfigEnvelope
	if err := json.Unmarshal(response.Body(), &account); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecodeAccount, err)
	}
	if account.Data == nil || !account.Data.Login {
		return nil, nil
	}

	if userIdentifier := scalarText(account.Data.UID); userIdentifier != "" {
		info, err := client.requestProfile(ctx, userIdentifier)
		if err != nil {
			return nil, err
		}
		if info != nil {
			client.cache.Set(cache.UserInfo, cache.ScalarKey, *info)
			return info, nil
		}
		client.logger.Info(logMessageUserInfoBasic, zap.Int(logFieldUserIdentifierLength, len(userIdentifier)))
	}

	screenName := UnknownScreenName
	if account.Data.Nick != nil {
		screenName = *account.Data.Nick
	}
	info := feed.UserInfo{
		ScreenName:   screenName,
		Description:  EmptyDescription,
		VerifiedType: basicProfileVerifiedType,
	}
	client.cache.Set(cache.UserInfo, cache.ScalarKey, info)
	return &info, nil
}

// requestProfile returns nil without an error when the container has no cards list.
func (client *Client) requestProfile(ctx context.Context, userIdentifier string) (*feed.UserInfo, error) {
	response, err := client.get(ctx, containerIndexPath, map[string]string{
		containerIDParameter: fmt.Sprintf(profileContainerFormat, userIdentifier),
	}, client.requestTimeout)
	if err != nil {
		return nil, err
	}

	var profile profileEnvelope
	if err := json.Unmarshal(response.Body(), &profile); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecodeProfile, err)
	}
	if profile.Data == nil || profile.Data.Cards == nil {
		return nil, nil
	}

	items := make(map[string]string)
	for _, card := range *profile.Data.Cards {
		for _, item := range card.CardGroup {
			if item.Name == nil || item.Content == nil {
				continue
			}
			items[*item.Name] = scalarText(item.Content)
		}
	}

	info := feed.UserInfo{
		ScreenName:     valueOrDefault(items, profileItemNickname, UnknownScreenName),
		Description:    valueOrDefault(items, profileItemDescription, EmptyDescription),
		FollowersCount: feed.ExtractNumber(items[profileItemFollowers]),
		FollowCount:    feed.ExtractNumber(items[profileItemFollows]),
		StatusesCount:  feed.ExtractNumber(items[profileItemStatuses]),
	}
	_, info.Verified = items[profileItemVerified]
	return &info, nil
}

// collapse shares one load among concurrent callers of key. The load runs detached from the caller's
// cancellation, so a caller that gives up does not fail the others; the per-request timeout still bounds it.
func (client *Client) collapse(ctx context.Context, key string, load func(context.Context) (interface{}, error)) (interface{}, error) {
	loadContext := context.WithoutCancel(ctx)
	resultChannel := client.flightGroup.DoChan(key, func() (interface{}, error) {
		return load(loadContext)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChannel:
		return result.Val, result.Err
	}
}

func valueOrDefault(items map[string]string, name string, fallback string) string {
	if value, exists := items[name]; exists {
		return value
	}
	return fallback
}

// scalarText renders a JSON string or number as text. Other values yield the empty string.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err == nil {
		if integerValue, convErr := number.Int64(); convErr == nil {
			return strconv.FormatInt(integerValue, 10)
		}
		return number.String()
	}
	return ""
}
