package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// LineSource hands out terminal lines to whoever asks next. A single goroutine reads the input, so
// prompts from different components never split one buffered stream between them.
type LineSource struct {
	reader  *bufio.Reader
	once    sync.Once
	lines   chan lineResult
	mutex   sync.Mutex
	lastErr error
}

// NewLineSource wraps input. Reading starts on the first ReadLine call.
func NewLineSource(input io.Reader) *LineSource {
	return &LineSource{
		reader: bufio.NewReader(input),
		lines:  make(chan lineResult),
	}
}

// ReadLine returns the next line without its trailing newline. A final unterminated line is returned
// before io.EOF. Once the input fails every later call returns the same error.
func (source *LineSource) ReadLine(ctx context.Context) (string, error) {
	source.mutex.Lock()
	if source.lastErr != nil {
		err := source.lastErr
		source.mutex.Unlock()
		return "", err
	}
	source.mutex.Unlock()

	source.once.Do(func() {
		go source.readLoop()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result, open := <-source.lines:
		if !open {
			source.mutex.Lock()
			defer source.mutex.Unlock()
			if source.lastErr == nil {
				source.lastErr = io.EOF
			}
			return "", source.lastErr
		}
		if result.err != nil {
			source.mutex.Lock()
			source.lastErr = result.err
			source.mutex.Unlock()
			return "", result.err
		}
		return result.line, nil
	}
}

func (source *LineSource) readLoop() {
	defer close(source.lines)
	for {
		text, err := source.reader.ReadString('\n')
		if text != "" {
			source.lines <- lineResult{line: strings.TrimRight(text, "\r\n")}
		}
		if err != nil {
			source.lines <- lineResult{err: err}
			return
		}
	}
}
