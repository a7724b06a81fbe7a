package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tgstories/internal/credentials"

	"golang.org/x/term"
)

type lineResult struct {
	line string
	err  error
}

// Prompter is meant for one caller at a time. Reads happen on a background
// goroutine only when an answer is requested, so a canceled context returns
// at once and the late answer goes to the next question.
type Prompter struct {
	in       io.Reader
	reader   *bufio.Reader
	out      io.Writer
	start    sync.Once
	requests chan struct{}
	lines    chan lineResult
	pending  bool
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:       in,
		reader:   bufio.NewReader(in),
		out:      out,
		requests: make(chan struct{}),
		lines:    make(chan lineResult),
	}
}

// Interactive reports whether input comes from a terminal.
func (p *Prompter) Interactive() bool {
	f, ok := p.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Prompter) Ask(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	line, err := p.readLine(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read answer: %w", err)
		}
	}

	return strings.TrimSpace(line), nil
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	p.start.Do(func() {
		go p.readLoop()
	})

	if !p.pending {
		select {
		case p.requests <- struct{}{}:
			p.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case res := <-p.lines:
		p.pending = false
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Prompter) readLoop() {
	for range p.requests {
		line, err := p.reader.ReadString('\n')
		p.lines <- lineResult{line: line, err: err}
	}
}

// AskSecret reads without echo when attached to a terminal.
func (p *Prompter) AskSecret(ctx context.Context, label string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.Ask(ctx, label)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	done := make(chan lineResult, 1)
	go func() {
		secret, err := term.ReadPassword(int(f.Fd()))
		done <- lineResult{line: string(secret), err: err}
	}()

	var res lineResult
	select {
	case res = <-done:
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	}

	fmt.Fprintln(p.out)
	if res.err != nil {
		return "", fmt.Errorf("read secret: %w", res.err)
	}

	return strings.TrimSpace(res.line), nil
}

func (p *Prompter) Credentials(ctx context.Context) (credentials.Credentials, error) {
	rawID, err := p.Ask(ctx, "Enter your API ID")
	if err != nil {
		return credentials.Credentials{}, err
	}

	apiID, err := strconv.Atoi(rawID)
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("parse API ID %q: %w", rawID, err)
	}

	apiHash, err := p.Ask(ctx, "Enter your API Hash")
	if err != nil {
		return credentials.Credentials{}, err
	}

	phone, err := p.Ask(ctx, "Enter your phone number")
	if err != nil {
		return credentials.Credentials{}, err
	}

	return credentials.Credentials{
		APIID:       credentials.APIID(apiID),
		APIHash:     apiHash,
		PhoneNumber: phone,
	}, nil
}

// Interval falls back to def on empty, malformed or non-positive input.
func (p *Prompter) Interval(ctx context.Context, def time.Duration) (time.Duration, error) {
	defSeconds := int(def / time.Second)

	answer, err := p.Ask(ctx,
		fmt.Sprintf("Enter the checking interval in seconds (default is %d seconds)", defSeconds))
	if err != nil {
		return 0, err
	}

	if answer == "" {
		return def, nil
	}

	seconds, err := strconv.Atoi(answer)
	if err != nil || seconds <= 0 {
		fmt.Fprintf(p.out, "Invalid input. Using default interval of %d seconds.\n", defSeconds)
		return def, nil
	}

	return time.Duration(seconds) * time.Second, nil
}

func (p *Prompter) Code(ctx context.Context) (string, error) {
	return p.Ask(ctx, "Enter the code you received")
}

func (p *Prompter) Password(ctx context.Context) (string, error) {
	return p.AskSecret(ctx, "Enter your 2FA password")
}
