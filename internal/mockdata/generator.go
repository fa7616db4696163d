package mockdata

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hyperweibo/hyperweibo/internal/feed"
)

const (
	// HomeTimelineSize is the number of records returned for a mocked home timeline.
	HomeTimelineSize = 10
	// GroupTimelineSize is the number of records returned for a mocked group or special focus timeline.
	GroupTimelineSize = 5

	recordWindow            = 7 * 24 * time.Hour
	maxComments             = 1000
	maxAttitudes            = 5000
	maxReposts              = 500
	minPictures             = 1
	maxPictures             = 9
	minVideoSeconds         = 10
	maxVideoSeconds         = 300
	pictureURLFormat        = "https://example.com/pic%d.jpg"
	videoPageType           = "video"
	platformOffsetSeconds   = 8 * 60 * 60
	platformZoneName        = "CST"
	mockUserScreenName      = "模拟用户"
	mockUserDescription     = "这是一个模拟用户，用于演示HyperWeibo的功能"
	minMockFollowers        = 100
	maxMockFollowers        = 10000
	minMockFollows          = 50
	maxMockFollows          = 500
	minMockStatuses         = 100
	maxMockStatuses         = 1000
	mockGroupIDCelebrities  = "mock_group_celebrities"
	mockGroupIDColleagues   = "mock_group_colleagues"
	mockGroupIDClassmates   = "mock_group_classmates"
	mockGroupIDSpecialFocus = "mock_group_special_focus"
)

var (
	authorPool = []feed.Author{
		{ScreenName: "微博用户1", Verified: true, VerifiedType: 0},
		{ScreenName: "微博用户2", Verified: false, VerifiedType: -1},
		{ScreenName: "微博官方", Verified: true, VerifiedType: 1},
		{ScreenName: "科技博主", Verified: true, VerifiedType: 0},
		{ScreenName: "娱乐博主", Verified: true, VerifiedType: 2},
	}

	textPool = []string{
		"今天天气真好，出去走走吧！#日常生活#",
		"分享一篇好文章：《如何提高工作效率》，推荐阅读！",
		"新电影《模拟人生》今天上映了，有没有一起去看的？",
		"刚刚发布了新版本，修复了一些bug，欢迎更新！#技术分享#",
		"美食推荐：今天去了一家新开的餐厅，味道不错，推荐给大家！[美食]",
		"今天是个特别的日子，祝所有人节日快乐！",
		"分享一个小技巧：如何快速学习一门新语言 #学习方法#",
		"刚刚看完一本好书，强烈推荐！#读书分享#",
		"新的一天，新的开始，加油！",
		"谢谢大家的支持，我们会继续努力！",
	}

	platformZone = time.FixedZone(platformZoneName, platformOffsetSeconds)
)

// Authors returns a copy of the fixed author pool.
func Authors() []feed.Author {
	return append([]feed.Author(nil), authorPool...)
}

// Texts returns a copy of the fixed text pool.
func Texts() []string {
	return append([]string(nil), textPool...)
}

// Groups returns the placeholder group list, special focus group first.
func Groups() []feed.Group {
	return []feed.Group{
		{ID: mockGroupIDSpecialFocus, Name: feed.DefaultSpecialFocusGroupName},
		{ID: mockGroupIDCelebrities, Name: "名人明星"},
		{ID: mockGroupIDColleagues, Name: "同事"},
		{ID: mockGroupIDClassmates, Name: "同学"},
	}
}

// Config customizes a Generator.
type Config struct {
	// Source supplies randomness; defaults to a time-seeded source.
	Source rand.Source
	// Now supplies the reference time for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Generator produces synthetic records and profiles. It is safe for concurrent use.
type Generator struct {
	mutex  sync.Mutex
	random *rand.Rand
	now    func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(configuration Config) *Generator {
	source := configuration.Source
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{random: rand.New(source), now: now}
}

// Records returns count synthetic timeline records. Non-positive counts yield an empty list.
func (generator *Generator) Records(count int) []feed.TimelineRecord {
	if count <= 0 {
		return []feed.TimelineRecord{}
	}

	generator.mutex.Lock()
	defer generator.mutex.Unlock()

	reference := generator.now().In(platformZone)
	windowSeconds := int64(recordWindow / time.Second)
	records := make([]feed.TimelineRecord, 0, count)
	for index := 0; index < count; index++ {
		ageSeconds := generator.random.Int63n(windowSeconds - 1)
		record := feed.TimelineRecord{
			User:           generator.pickAuthor(),
			Text:           generator.pickText(),
			CreatedAt:      formatCreatedAt(reference, ageSeconds),
			CommentsCount:  feed.Count(generator.random.Intn(maxComments + 1)),
			AttitudesCount: feed.Count(generator.random.Intn(maxAttitudes + 1)),
			RepostsCount:   feed.Count(generator.random.Intn(maxReposts + 1)),
		}

		if generator.coinFlip() {
			pictureCount := generator.between(minPictures, maxPictures)
			record.Pictures = make([]feed.Picture, 0, pictureCount)
			for pictureIndex := 0; pictureIndex < pictureCount; pictureIndex++ {
				record.Pictures = append(record.Pictures, feed.Picture{URL: fmt.Sprintf(pictureURLFormat, pictureIndex)})
			}
		} else if generator.coinFlip() {
			record.PageInfo = &feed.PageInfo{
				Type:      videoPageType,
				MediaInfo: &feed.MediaInfo{Duration: float64(generator.between(minVideoSeconds, maxVideoSeconds))},
			}
		}

		if generator.coinFlip() {
			retweetAgeSeconds := ageSeconds + 1 + generator.random.Int63n(windowSeconds-ageSeconds-1)
			record.Retweeted = &feed.TimelineRecord{
				User:      generator.pickAuthor(),
				Text:      generator.pickText(),
				CreatedAt: formatCreatedAt(reference, retweetAgeSeconds),
			}
		}

		records = append(records, record)
	}
	return records
}

// User returns a synthetic profile with randomized counters.
func (generator *Generator) User() feed.UserInfo {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()

	return feed.UserInfo{
		ScreenName:     mockUserScreenName,
		Description:    mockUserDescription,
		FollowersCount: int64(generator.between(minMockFollowers, maxMockFollowers)),
		FollowCount:    int64(generator.between(minMockFollows, maxMockFollows)),
		StatusesCount:  int64(generator.between(minMockStatuses, maxMockStatuses)),
		Verified:       true,
		VerifiedType:   0,
	}
}

// Groups returns the placeholder group list.
func (generator *Generator) Groups() []feed.Group {
	return Groups()
}

func (generator *Generator) pickAuthor() feed.Author {
	return authorPool[generator.random.Intn(len(authorPool))]
}

func (generator *Generator) pickText() string {
	return textPool[generator.random.Intn(len(textPool))]
}

func (generator *Generator) coinFlip() bool {
	return generator.random.Intn(2) == 0
}

func (generator *Generator) between(minimum int, maximum int) int {
	return minimum + generator.random.Intn(maximum-minimum+1)
}

func formatCreatedAt(reference time.Time, ageSeconds int64) string {
	return reference.Add(-time.Duration(ageSeconds) * time.Second).Format(feed.CreatedAtLayout)
}
