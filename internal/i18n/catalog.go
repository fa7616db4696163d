package i18n

import (
	"errors"
	"fmt"
	"strings"

	"dario.cat/mergo"
	"golang.org/x/text/language"
)

// Language selects the catalog language.
type Language string

const (
	// LanguageChinese renders Simplified Chinese text.
	LanguageChinese Language = "zh"
	// LanguageEnglish renders English text.
	LanguageEnglish Language = "en"
	// LanguageAuto resolves the language from the locale environment.
	LanguageAuto Language = "auto"
)

// Style selects the wording used for the same data.
type Style string

const (
	// StyleWeibo uses the platform's own wording.
	StyleWeibo Style = "weibo"
	// StyleMaven presents timelines as build and test reports.
	StyleMaven Style = "maven"
)

const (
	localeAllVariable   = "LC_ALL"
	localeLangVariable  = "LANG"
	errMessageLanguage  = "unsupported language"
	errMessageStyle     = "unsupported style"
	localeEncodingMark  = "."
	localeModifierMark  = "@"
	localeSeparator     = "_"
	languageTagSplitter = "-"
)

var (
	// ErrUnsupportedLanguage indicates a language outside en, zh and auto.
	ErrUnsupportedLanguage = errors.New(errMessageLanguage)
	// ErrUnsupportedStyle indicates a style outside weibo and maven.
	ErrUnsupportedStyle = errors.New(errMessageStyle)
)

// Catalog holds every user-facing string. Fields ending in Format are fmt format strings.
type Catalog struct {
	ApplicationTitle       string
	InitializingMessage    string
	BrowserAuthNotice      string
	HomeName               string
	SpecialFocusName       string
	GroupNoun              string
	LoadingFormat          string
	PageTitleFormat        string
	RecordCountFormat      string
	MenuTitle              string
	MenuRefresh            string
	MenuSwitchToFormat     string
	MenuChooseGroup        string
	MenuNextPage           string
	MenuPreviousPage       string
	MenuGotoPage           string
	MenuQuit               string
	ChoicePrompt           string
	AutoRefreshFormat      string
	GroupListTitle         string
	GroupIndexColumn       string
	GroupIDColumn          string
	GroupNameColumn        string
	GroupChoicePrompt      string
	InvalidGroupIndex      string
	InvalidNumber          string
	AlreadyFirstPage       string
	PagePrompt             string
	PageMustBePositive     string
	InvalidPage            string
	GroupNotFoundFormat    string
	AbortedMessage         string
	FailedFormat           string
	MockModeNotice         string
	RepostFormat           string
	AttachmentsFormat      string
	MultimediaMarker       string
	StatsFormat            string
	YearsAgoFormat         string
	MonthsAgoFormat        string
	DaysAgoFormat          string
	HoursAgoFormat         string
	MinutesAgoFormat       string
	JustNow                string
	UserInfoTitle          string
	UserInfoItemColumn     string
	UserInfoValueColumn    string
	UserInfoScreenName     string
	UserInfoDescription    string
	UserInfoFollowers      string
	UserInfoFollows        string
	UserInfoStatuses       string
	UserInfoUnavailable    string
	CookieFoundMessage     string
	CookieNotFoundMessage  string
	CookieUsageFormat      string
	AgreementRequired      string
	AgreementRunHintFormat string
}

var chineseBase = Catalog{
	ApplicationTitle:       "微博命令行工具",
	InitializingMessage:    "正在初始化...",
	BrowserAuthNotice:      "如果无法自动获取会话信息，将会打开浏览器进行认证",
	HomeName:               "首页",
	SpecialFocusName:       "特别关注",
	GroupNoun:              "分组",
	LoadingFormat:          "正在获取%s的数据（第%d页）...",
	PageTitleFormat:        "%s（第%d页）",
	RecordCountFormat:      "共 %d 条记录",
	MenuTitle:              "操作菜单",
	MenuRefresh:            "1. 刷新当前页",
	MenuSwitchToFormat:     "2. 切换到%s",
	MenuChooseGroup:        "3. 选择分组",
	MenuNextPage:           "n. 下一页",
	MenuPreviousPage:       "p. 上一页",
	MenuGotoPage:           "g. 跳转到指定页",
	MenuQuit:               "q. 退出",
	ChoicePrompt:           "请选择 [1/2/3/n/p/g/q] (1): ",
	AutoRefreshFormat:      "每 %d 秒自动刷新，输入选项可立即操作",
	GroupListTitle:         "分组列表",
	GroupIndexColumn:       "序号",
	GroupIDColumn:          "分组ID",
	GroupNameColumn:        "分组名称",
	GroupChoicePrompt:      "请选择分组序号（输入0返回） (0): ",
	InvalidGroupIndex:      "无效的分组序号",
	InvalidNumber:          "请输入有效的数字",
	AlreadyFirstPage:       "已经是第一页了",
	PagePrompt:             "请输入页码: ",
	PageMustBePositive:     "页码必须大于0",
	InvalidPage:            "请输入有效的页码",
	GroupNotFoundFormat:    "未找到指定的分组ID: %s",
	AbortedMessage:         "已退出",
	FailedFormat:           "运行失败: %v",
	MockModeNotice:         "当前使用模拟数据",
	RepostFormat:           "引用@%s:",
	AttachmentsFormat:      "[附件: %d个]",
	MultimediaMarker:       "[多媒体]",
	StatsFormat:            "引用: %d | 评论: %d | 赞同: %d",
	YearsAgoFormat:         "%d年前",
	MonthsAgoFormat:        "%d个月前",
	DaysAgoFormat:          "%d天前",
	HoursAgoFormat:         "%d小时前",
	MinutesAgoFormat:       "%d分钟前",
	JustNow:                "刚刚",
	UserInfoTitle:          "用户信息",
	UserInfoItemColumn:     "项目",
	UserInfoValueColumn:    "内容",
	UserInfoScreenName:     "用户名",
	UserInfoDescription:    "简介",
	UserInfoFollowers:      "粉丝数",
	UserInfoFollows:        "关注数",
	UserInfoStatuses:       "微博数",
	UserInfoUnavailable:    "获取用户信息失败",
	CookieFoundMessage:     "已提取会话cookie:",
	CookieNotFoundMessage:  "未能从命令中提取cookie",
	CookieUsageFormat:      "使用方法: hyperweibo --cookie '%s'",
	AgreementRequired:      "您必须同意许可协议才能使用本软件。",
	AgreementRunHintFormat: "请运行 '%s agree' 命令查看并同意许可协议。",
}

var englishBase = Catalog{
	ApplicationTitle:       "Weibo command line client",
	InitializingMessage:    "Initializing...",
	BrowserAuthNotice:      "A browser window opens for sign-in if the session cannot be loaded automatically",
	HomeName:               "home timeline",
	SpecialFocusName:       "special focus",
	GroupNoun:              "group",
	LoadingFormat:          "Loading %s (page %d)...",
	PageTitleFormat:        "%s (page %d)",
	RecordCountFormat:      "%d records",
	MenuTitle:              "Menu",
	MenuRefresh:            "1. Refresh this page",
	MenuSwitchToFormat:     "2. Switch to %s",
	MenuChooseGroup:        "3. Choose a group",
	MenuNextPage:           "n. Next page",
	MenuPreviousPage:       "p. Previous page",
	MenuGotoPage:           "g. Go to page",
	MenuQuit:               "q. Quit",
	ChoicePrompt:           "Choose [1/2/3/n/p/g/q] (1): ",
	AutoRefreshFormat:      "Refreshing every %d seconds; type an option to act now",
	GroupListTitle:         "Groups",
	GroupIndexColumn:       "#",
	GroupIDColumn:          "Group ID",
	GroupNameColumn:        "Group name",
	GroupChoicePrompt:      "Group number (0 to go back) (0): ",
	InvalidGroupIndex:      "Invalid group number",
	InvalidNumber:          "Please enter a valid number",
	AlreadyFirstPage:       "Already on the first page",
	PagePrompt:             "Page number: ",
	PageMustBePositive:     "The page number must be greater than 0",
	InvalidPage:            "Please enter a valid page number",
	GroupNotFoundFormat:    "Group ID not found: %s",
	AbortedMessage:         "Stopped",
	FailedFormat:           "Failed: %v",
	MockModeNotice:         "Showing mock data",
	RepostFormat:           "Quoting @%s:",
	AttachmentsFormat:      "[attachments: %d]",
	MultimediaMarker:       "[multimedia]",
	StatsFormat:            "Quotes: %d | Comments: %d | Likes: %d",
	YearsAgoFormat:         "%d years ago",
	MonthsAgoFormat:        "%d months ago",
	DaysAgoFormat:          "%d days ago",
	HoursAgoFormat:         "%d hours ago",
	MinutesAgoFormat:       "%d minutes ago",
	JustNow:                "just now",
	UserInfoTitle:          "User information",
	UserInfoItemColumn:     "Item",
	UserInfoValueColumn:    "Value",
	UserInfoScreenName:     "Name",
	UserInfoDescription:    "Description",
	UserInfoFollowers:      "Followers",
	UserInfoFollows:        "Following",
	UserInfoStatuses:       "Posts",
	UserInfoUnavailable:    "User information unavailable",
	CookieFoundMessage:     "Session cookie extracted:",
	CookieNotFoundMessage:  "No cookie found in the command",
	CookieUsageFormat:      "Usage: hyperweibo --cookie '%s'",
	AgreementRequired:      "You must accept the license agreement to use this software.",
	AgreementRunHintFormat: "Run '%s agree' to read and accept the license agreement.",
}

var chineseMaven = Catalog{
	ApplicationTitle:    "Java项目构建工具 - 测试报告",
	InitializingMessage: "正在初始化构建环境...",
	HomeName:            "标准测试套件",
	SpecialFocusName:    "特殊测试套件",
	GroupNoun:           "测试组",
	PageTitleFormat:     "%s数据（第%d页）",
	MenuChooseGroup:     "3. 选择测试组",
	GroupListTitle:      "测试组列表",
	GroupIDColumn:       "组ID",
	GroupNameColumn:     "组名称",
	GroupChoicePrompt:   "请选择测试组序号（输入0返回） (0): ",
	InvalidGroupIndex:   "无效的测试组序号",
	GroupNotFoundFormat: "未找到指定的测试组ID: %s",
	AbortedMessage:      "构建已中止",
	FailedFormat:        "构建失败: %v",
	MockModeNotice:      "当前使用模拟测试数据",
	UserInfoTitle:       "构建账户信息",
	UserInfoStatuses:    "构建数",
}

var englishMaven = Catalog{
	ApplicationTitle:    "Java project build tool - test report",
	InitializingMessage: "Initializing the build environment...",
	HomeName:            "standard test suite",
	SpecialFocusName:    "special test suite",
	GroupNoun:           "test group",
	MenuChooseGroup:     "3. Choose a test group",
	GroupListTitle:      "Test groups",
	GroupIDColumn:       "Test group ID",
	GroupNameColumn:     "Test group name",
	GroupChoicePrompt:   "Test group number (0 to go back) (0): ",
	InvalidGroupIndex:   "Invalid test group number",
	GroupNotFoundFormat: "Test group ID not found: %s",
	AbortedMessage:      "Build aborted",
	FailedFormat:        "Build failed: %v",
	MockModeNotice:      "Showing mock test data",
	UserInfoTitle:       "Build account",
	UserInfoStatuses:    "Builds",
}

// ParseLanguage validates a --language value.
func ParseLanguage(value string) (Language, error) {
	switch candidate := Language(strings.ToLower(strings.TrimSpace(value))); candidate {
	case LanguageChinese, LanguageEnglish, LanguageAuto:
		return candidate, nil
	case "":
		return LanguageAuto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, value)
	}
}

// ParseStyle validates a --style value.
func ParseStyle(value string) (Style, error) {
	switch candidate := Style(strings.ToLower(strings.TrimSpace(value))); candidate {
	case StyleWeibo, StyleMaven:
		return candidate, nil
	case "":
		return StyleWeibo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedStyle, value)
	}
}

// ResolveLanguage turns LanguageAuto into a concrete language using LC_ALL, then LANG. English locales
// resolve to English; everything else, including an unset locale, resolves to Chinese.
func ResolveLanguage(requested Language, lookupEnv func(string) (string, bool)) Language {
	if requested == LanguageChinese || requested == LanguageEnglish {
		return requested
	}
	for _, variable := range []string{localeAllVariable, localeLangVariable} {
		value, exists := lookupEnv(variable)
		if !exists || strings.TrimSpace(value) == "" {
			continue
		}
		tag, err := language.Parse(localeToTag(value))
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		english, _ := language.English.Base()
		if base == english {
			return LanguageEnglish
		}
		return LanguageChinese
	}
	return LanguageChinese
}

// Lookup returns the catalog for a concrete language and style. Unknown values fall back to Chinese and weibo.
func Lookup(selected Language, style Style) Catalog {
	base, overlay := chineseBase, chineseMaven
	if selected == LanguageEnglish {
		base, overlay = englishBase, englishMaven
	}
	if style != StyleMaven {
		return base
	}
	merged := base
	if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
		return base
	}
	return merged
}

// localeToTag converts a POSIX locale such as en_US.UTF-8 into a BCP 47 tag.
func localeToTag(locale string) string {
	trimmed := strings.TrimSpace(locale)
	if index := strings.Index(trimmed, localeEncodingMark); index >= 0 {
		trimmed = trimmed[:index]
	}
	if index := strings.Index(trimmed, localeModifierMark); index >= 0 {
		trimmed = trimmed[:index]
	}
	return strings.ReplaceAll(trimmed, localeSeparator, languageTagSplitter)
}
