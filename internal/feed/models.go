package feed

import (
	"time"
)

const (
	// CreatedAtLayout is the timestamp layout used by the platform for created_at fields.
	CreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"
	// DefaultSpecialFocusGroupName is the display name of the special focus group.
	DefaultSpecialFocusGroupName = "特别关注"
)

// Author describes the account that published a timeline record.
type Author struct {
	ScreenName   string `json:"screen_name"`
	Verified     bool   `json:"verified"`
	VerifiedType int    `json:"verified_type"`
}

// Picture is a single image attachment.
type Picture struct {
	URL string `json:"url"`
}

// Pictures lists the image attachments of a record. Some responses send them as an object keyed by position.
type Pictures []Picture

// MediaInfo carries video metadata.
type MediaInfo struct {
	Duration float64 `json:"duration"`
}

// PageInfo wraps embedded media of a record.
type PageInfo struct {
	Type      string     `json:"type,omitempty"`
	MediaInfo *MediaInfo `json:"media_info,omitempty"`
}

// TimelineRecord is one feed item. A retweeted record has the same shape and is never nested further.
type TimelineRecord struct {
	User           Author          `json:"user"`
	Text           string          `json:"text"`
	CreatedAt      string          `json:"created_at"`
	CommentsCount  Count           `json:"comments_count"`
	AttitudesCount Count           `json:"attitudes_count"`
	RepostsCount   Count           `json:"reposts_count"`
	Pictures       Pictures        `json:"pics,omitempty"`
	PageInfo       *PageInfo       `json:"page_info,omitempty"`
	Retweeted      *TimelineRecord `json:"retweeted_status,omitempty"`
}

// HasPictures reports whether the record carries image attachments.
func (record TimelineRecord) HasPictures() bool {
	return len(record.Pictures) > 0
}

// HasVideo reports whether the record carries video metadata.
func (record TimelineRecord) HasVideo() bool {
	return record.PageInfo != nil && record.PageInfo.MediaInfo != nil
}

// CreatedTime parses CreatedAt using CreatedAtLayout.
func (record TimelineRecord) CreatedTime() (time.Time, error) {
	return time.Parse(CreatedAtLayout, record.CreatedAt)
}

// Group is a user-defined content category.
type Group struct {
	ID   string `json:"gid"`
	Name string `json:"name"`
}

// FindGroupByName returns the first group whose name matches exactly.
func FindGroupByName(groups []Group, name string) (Group, bool) {
	for _, group := range groups {
		if group.Name == name {
			return group, true
		}
	}
	return Group{}, false
}

// FindGroupByID returns the group with the supplied identifier.
func FindGroupByID(groups []Group, groupID string) (Group, bool) {
	for _, group := range groups {
		if group.ID == groupID {
			return group, true
		}
	}
	return Group{}, false
}

// UserInfo summarizes the signed-in account.
type UserInfo struct {
	ScreenName     string `json:"screen_name"`
	Description    string `json:"description"`
	FollowersCount int64  `json:"followers_count"`
	FollowCount    int64  `json:"follow_count"`
	StatusesCount  int64  `json:"statuses_count"`
	Verified       bool   `json:"verified"`
	VerifiedType   int    `json:"verified_type"`
}
