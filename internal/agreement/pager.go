package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultPageHeight is the number of agreement lines shown per page.
	DefaultPageHeight = 20

	keyNext     = "n"
	keyPrevious = "p"
	keyQuit     = "q"

	pageTitleFormat       = "%s (第 %d/%d 页)"
	hintMiddlePage        = "按 [n] 查看下一页，按 [p] 查看上一页，按 [Enter] 直接同意，按 [q] 退出"
	hintLastPage          = "已到达最后一页，按 [Enter] 直接同意，按 [p] 查看上一页，按 [q] 退出"
	hintSinglePage        = "按 [Enter] 直接同意，按 [q] 退出"
	mustViewWhole         = "您必须查看完整个协议才能继续！"
	notViewedWarning      = "您尚未查看完整个协议，确定要直接同意吗？"
	confirmDirectPrompt   = "确认直接同意？ [y/N]: "
	alreadyAccepted       = "您已经同意了许可协议。"
	stateReset            = "已重置协议同意状态。"
	continuePrompt        = "请按 Enter 键继续查看完整协议（或按 q 退出）..."
	notAccepted           = "您未同意许可协议，程序将退出。"
	mustViewChinese       = "您必须查看完整个中文版许可协议才能继续！"
	finalNotice           = "重要提示：使用本软件即表示您确认已阅读、理解并同意遵守上述所有条款和条件。"
	finalNoticeRefuse     = "如不同意，请立即停止使用本软件并删除所有相关文件。"
	finalConfirmPrompt    = "您是否同意上述许可协议？ [y/N]: "
	thanksMessage         = "感谢您同意许可协议。现在您可以使用本软件了。"
	saveFailedFormat      = "保存协议同意状态时出错: %v"
	errMessageReadAnswer  = "read agreement answer"
	logMessageAccepted    = "license agreement accepted"
	logMessageDeclined    = "license agreement declined"
	logMessageSaveFailed  = "failed to persist agreement acceptance"
	logFieldDirectAccept  = "direct"
	logFieldViewedChinese = "viewed_chinese"
)

var affirmativeAnswers = map[string]bool{"y": true, "yes": true, "是": true}

// LineReader supplies answers typed at the terminal.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Printer writes styled lines.
type Printer interface {
	Clear()
	Heading(text string)
	Line(text string)
	Prompt(text string)
	Warning(text string)
	Failure(text string)
	Success(text string)
}

// Config customizes a Gate.
type Config struct {
	Store      *Store
	Lines      LineReader
	Printer    Printer
	PageHeight int
	Logger     *zap.Logger
}

// Gate asks for, and remembers, acceptance of the license agreement.
type Gate struct {
	store      *Store
	lines      LineReader
	printer    Printer
	pageHeight int
	logger     *zap.Logger
}

type pagingOutcome struct {
	viewedLastPage bool
	directAccept   bool
}

// NewGate constructs a Gate.
func NewGate(configuration Config) *Gate {
	store := configuration.Store
	if store == nil {
		store = NewStore(StoreConfig{Logger: configuration.Logger})
	}
	pageHeight := configuration.PageHeight
	if pageHeight <= 0 {
		pageHeight = DefaultPageHeight
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:      store,
		lines:      configuration.Lines,
		printer:    configuration.Printer,
		pageHeight: pageHeight,
		logger:     logger,
	}
}

// Accepted reports whether an acceptance is already stored.
func (gate *Gate) Accepted() bool {
	return gate.store.Accepted()
}

// Ensure returns true when the agreement is accepted, asking interactively unless a valid marker exists.
// force shows the agreement even when it was accepted before.
func (gate *Gate) Ensure(ctx context.Context, force bool) (bool, error) {
	if !force {
		record, err := gate.store.Load()
		switch {
		case errors.Is(err, ErrLocalStateCorrupt):
			gate.printer.Warning(stateReset)
		case err == nil && record.Accepted():
			gate.printer.Success(alreadyAccepted)
			return true, nil
		}
	}

	gate.printer.Clear()
	gate.printer.Failure(noticeHeading)
	gate.printer.Failure(noticeLead)
	for _, item := range noticeItems {
		gate.printer.Line(item)
	}
	gate.printer.Line("")
	gate.printer.Prompt(continuePrompt)
	answer, err := gate.readAnswer(ctx)
	if err != nil {
		return false, err
	}
	if answer == keyQuit {
		return gate.decline(false)
	}

	chinese, err := gate.page(ctx, ChineseText, ChineseTitle)
	if err != nil {
		return false, err
	}

	agreed := chinese.directAccept
	if !agreed {
		if _, err := gate.page(ctx, EnglishText, EnglishTitle); err != nil {
			return false, err
		}
		if !chinese.viewedLastPage {
			gate.printer.Failure(mustViewChinese)
			return gate.decline(false)
		}
		gate.printer.Clear()
		gate.printer.Failure(finalNotice)
		gate.printer.Failure(finalNoticeRefuse)
		gate.printer.Line("")
		agreed, err = gate.confirm(ctx, finalConfirmPrompt)
		if err != nil {
			return false, err
		}
	}
	if !agreed {
		return gate.decline(chinese.viewedLastPage)
	}

	if err := gate.store.Save(); err != nil {
		gate.logger.Warn(logMessageSaveFailed, zap.Error(err))
		gate.printer.Warning(fmt.Sprintf(saveFailedFormat, err))
	}
	gate.logger.Info(logMessageAccepted, zap.Bool(logFieldDirectAccept, chinese.directAccept))
	gate.printer.Success(thanksMessage)
	return true, nil
}

func (gate *Gate) decline(viewedChinese bool) (bool, error) {
	gate.logger.Info(logMessageDeclined, zap.Bool(logFieldViewedChinese, viewedChinese))
	gate.printer.Failure(notAccepted)
	return false, nil
}

// page shows text in pages. The user must reach the last page before leaving with q; Enter accepts
// directly, after a confirmation when the last page was not reached.
func (gate *Gate) page(ctx context.Context, text string, title string) (pagingOutcome, error) {
	lines := strings.Split(text, "\n")
	pages := (len(lines) + gate.pageHeight - 1) / gate.pageHeight
	if pages < 1 {
		pages = 1
	}
	outcome := pagingOutcome{viewedLastPage: pages == 1}
	current := 1

	for {
		gate.printer.Clear()
		gate.printer.Heading(fmt.Sprintf(pageTitleFormat, title, current, pages))
		gate.printer.Line("")
		start := (current - 1) * gate.pageHeight
		end := start + gate.pageHeight
		if end > len(lines) {
			end = len(lines)
		}
		for _, line := range lines[start:end] {
			gate.printer.Line(line)
		}
		if current == pages {
			outcome.viewedLastPage = true
		}

		gate.printer.Line("")
		switch {
		case pages == 1:
			gate.printer.Heading(hintSinglePage)
		case current < pages:
			gate.printer.Heading(hintMiddlePage)
		default:
			gate.printer.Heading(hintLastPage)
		}

		key, err := gate.readAnswer(ctx)
		if err != nil {
			return outcome, err
		}
		switch {
		case key == keyQuit:
			if outcome.viewedLastPage {
				return outcome, nil
			}
			gate.printer.Failure(mustViewWhole)
		case key == keyNext && current < pages:
			current++
		case key == keyPrevious && current > 1:
			current--
		case key == "":
			if outcome.viewedLastPage {
				outcome.directAccept = true
				return outcome, nil
			}
			gate.printer.Warning(notViewedWarning)
			confirmed, err := gate.confirm(ctx, confirmDirectPrompt)
			if err != nil {
				return outcome, err
			}
			if confirmed {
				outcome.directAccept = true
				return outcome, nil
			}
		}
	}
}

func (gate *Gate) confirm(ctx context.Context, prompt string) (bool, error) {
	gate.printer.Prompt(prompt)
	answer, err := gate.readAnswer(ctx)
	if err != nil {
		return false, err
	}
	return affirmativeAnswers[answer], nil
}

func (gate *Gate) readAnswer(ctx context.Context) (string, error) {
	line, err := gate.lines.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageReadAnswer, err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}
