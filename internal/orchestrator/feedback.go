package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/planify/internal/session"
)

// AcceptKeyword ends a session from the feedback prompt.
const AcceptKeyword = "accept"

// IsAccept reports whether feedback approves the current plan.
func IsAccept(feedback string) bool {
	f := strings.TrimSpace(feedback)
	return f == "" || strings.EqualFold(f, AcceptKeyword)
}

// FeedbackFunc adapts a function to FeedbackSource.
type FeedbackFunc func(ctx context.Context, round session.Round) (string, error)

// Feedback calls f.
func (f FeedbackFunc) Feedback(ctx context.Context, round session.Round) (string, error) {
	return f(ctx, round)
}

// AcceptAll approves every round.
var AcceptAll FeedbackSource = FeedbackFunc(func(context.Context, session.Round) (string, error) {
	return "", nil
})

// LineFeedback reads one line of feedback per round. End of input accepts.
// Call Close when the session ends to stop the reader goroutine.
type LineFeedback struct {
	prompt io.Writer
	lines  chan lineResult
	once   sync.Once
	in     *bufio.Reader
	src    io.Reader

	done      chan struct{}
	closeOnce sync.Once
}

type lineResult struct {
	text string
	err  error
}

// NewLineFeedback reads feedback from in and writes the prompt to prompt.
func NewLineFeedback(in io.Reader, prompt io.Writer) *LineFeedback {
	return &LineFeedback{
		prompt: prompt,
		lines:  make(chan lineResult),
		in:     bufio.NewReader(in),
		src:    in,
		done:   make(chan struct{}),
	}
}

// Close stops the reader goroutine and closes the input if it is an
// io.Closer. A read blocked on a source that cannot be closed ends with the
// process. Feedback after Close accepts.
func (l *LineFeedback) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if c, ok := l.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Feedback prompts for the given round and waits for a line or cancellation.
// A line that is still being read when ctx ends is delivered to the next call.
func (l *LineFeedback) Feedback(ctx context.Context, round session.Round) (string, error) {
	if l.prompt != nil {
		fmt.Fprintf(l.prompt, "\nRound %d complete. Enter feedback for another round, or press Enter / type %q to finish:\n> ",
			round.Index, AcceptKeyword)
	}
	select {
	case <-l.done:
		return "", nil
	default:
	}
	l.once.Do(func() { go l.readLines() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", nil
	case r, ok := <-l.lines:
		if !ok {
			return "", nil
		}
		if r.err != nil {
			return "", r.err
		}
		return r.text, nil
	}
}

// readLines feeds l.lines until input ends or l is closed. It is the only
// reader of l.in.
func (l *LineFeedback) readLines() {
	defer close(l.lines)
	for {
		text, err := l.in.ReadString('\n')
		if text != "" || err == nil {
			if !l.send(lineResult{text: strings.TrimRight(text, "\r\n")}) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.send(lineResult{err: fmt.Errorf("reading feedback: %w", err)})
			}
			return
		}
	}
}

func (l *LineFeedback) send(r lineResult) bool {
	select {
	case l.lines <- r:
		return true
	case <-l.done:
		return false
	}
}
