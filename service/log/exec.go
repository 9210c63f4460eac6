package log

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultTailLines = 20

type execOption struct {
	outl, errl zapcore.Level
	outf, errf Filter
	tail       int
}

// ExecOption is an option that can be passed to Exec()
type ExecOption func(eo *execOption)

// StdoutLevel sets the level at which stdout should be logged
func StdoutLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.outl = l
	}
}

// StderrLevel sets the level at which stderr should be logged
func StderrLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.errl = l
	}
}

// TailLines sets the number of trailing stdout/stderr lines kept in the Result
func TailLines(n int) ExecOption {
	return func(eo *execOption) {
		eo.tail = n
	}
}

// Filter receives a message and the default level and returns a modified message with a new level
// if the last result is true, the msg is ignored
type Filter interface {
	Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool)
}

// StdoutFilter sets a function that modify a stdout message or change its level
func StdoutFilter(f Filter) ExecOption {
	return func(eo *execOption) {
		eo.outf = f
	}
}

// StderrFilter sets a function that modify a stderr message or change its level
func StderrFilter(f Filter) ExecOption {
	return func(eo *execOption) {
		eo.errf = f
	}
}

// Result is the outcome of an external command
type Result struct {
	Args     []string
	ExitCode int // -1 if the command did not exit normally
	Stdout   []string
	Stderr   []string
	Duration time.Duration
}

// Command returns the command line
func (r Result) Command() string {
	return strings.Join(r.Args, " ")
}

// LastError returns the last line written on stderr, or on stdout if stderr is empty
func (r Result) LastError() string {
	if len(r.Stderr) > 0 {
		return r.Stderr[len(r.Stderr)-1]
	}
	if len(r.Stdout) > 0 {
		return r.Stdout[len(r.Stdout)-1]
	}
	return ""
}

// ExecError is returned by Exec when the command fails
type ExecError struct {
	Result Result
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Result.Command(), e.Result.ExitCode)
	if last := e.Result.LastError(); last != "" {
		msg += " (" + last + ")"
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// Exec wraps os/exec for logging its outputs.
// If cmd.Stdout is not set, the commands stdout will
// be sent to log.Logger(ctx) (at Info level by default).
// If cmd.Stderr is not set, the commands
// stderr will be sent to log.Logger(ctx) (at Warn level by default).
// The last lines of both streams are kept in the returned Result.
// A non-zero exit status is returned as an *ExecError.
// On ctx cancellation, the cmd is Killed and ctx.Err() is returned.
func Exec(ctx context.Context, cmd *exec.Cmd, options ...ExecOption) (Result, error) {
	opts := execOption{
		outl: zapcore.InfoLevel,
		errl: zapcore.WarnLevel,
		tail: defaultTailLines,
	}
	for _, eo := range options {
		eo(&opts)
	}

	res := Result{Args: cmd.Args, ExitCode: -1}
	logger := Logger(ctx)
	var lout, lerr *levelledLogger
	var stdout, stderr io.Reader
	var err error

	if cmd.Stdout == nil {
		lout = &levelledLogger{Logger: logger, level: opts.outl, filter: opts.outf, tail: newTail(opts.tail)}
		if stdout, err = cmd.StdoutPipe(); err != nil {
			return res, fmt.Errorf("get stdout pipe: %w", err)
		}
	}
	if cmd.Stderr == nil {
		lerr = &levelledLogger{Logger: logger, level: opts.errl, filter: opts.errf, tail: newTail(opts.tail)}
		if stderr, err = cmd.StderrPipe(); err != nil {
			return res, fmt.Errorf("get stderr pipe: %w", err)
		}
	}
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("cmd.start: %w", err)
	}

	logwg := sync.WaitGroup{}
	if lout != nil {
		logwg.Add(1)
		go func() {
			defer logwg.Done()
			logLines(stdout, lout)
		}()
	}
	if lerr != nil {
		logwg.Add(1)
		go func() {
			defer logwg.Done()
			logLines(stderr, lerr)
		}()
	}

	done := make(chan error, 1)
	go func() {
		//wait for stdout/stderr to be logged
		logwg.Wait()
		done <- cmd.Wait()
	}()

	finish := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}
		if lout != nil {
			res.Stdout = lout.tail.lines()
		}
		if lerr != nil {
			res.Stderr = lerr.tail.lines()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExecError{Result: res, Err: err}
		}
		return res, err
	}

	contextDone := false
	ectx := ctx
	for {
		select {
		case <-ectx.Done():
			contextDone = true
			if err := cmd.Process.Kill(); err != nil {
				logger.Sugar().Warnf("kill: %v", err)
				return finish(ectx.Err())
			}
			ectx = context.Background()
			//exit will be handled via done channel
		case err := <-done:
			if contextDone {
				r, _ := finish(nil)
				return r, ctx.Err()
			}
			return finish(err)
		}
	}
}

// logLines sends each line of sr to the logger
func logLines(sr io.Reader, logger *levelledLogger) {
	r := bufio.NewReader(sr)
	insideTooLongLine := false
	for {
		line, err := r.ReadSlice('\n')
		if err == io.EOF {
			if !insideTooLongLine && len(line) > 0 {
				logger.Print(string(line))
			}
			return
		}
		if insideTooLongLine {
			if err == nil {
				//reset
				insideTooLongLine = false
			}
		} else {
			if err == bufio.ErrBufferFull {
				logger.Print(fmt.Sprintf("%s ...[Message clipped]", line))
				insideTooLongLine = true
			} else if len(line) > 0 {
				logger.Print(string(line))
			}
		}
	}
}

// tail is a ring of the last n lines
type tail struct {
	n    int
	buf  []string
	next int
	full bool
}

func newTail(n int) *tail {
	if n < 0 {
		n = 0
	}
	return &tail{n: n, buf: make([]string, n)}
}

func (t *tail) push(line string) {
	if t.n == 0 {
		return
	}
	t.buf[t.next] = line
	t.next = (t.next + 1) % t.n
	if t.next == 0 {
		t.full = true
	}
}

func (t *tail) lines() []string {
	if !t.full {
		return append([]string(nil), t.buf[:t.next]...)
	}
	return append(append([]string(nil), t.buf[t.next:]...), t.buf[:t.next]...)
}

type levelledLogger struct {
	*zap.Logger
	level  zapcore.Level
	filter Filter
	tail   *tail
}

func (l levelledLogger) Print(msg string) {
	l.tail.push(strings.TrimRight(msg, "\r\n"))
	level := l.level
	if l.filter != nil {
		var ignore bool
		if msg, level, ignore = l.filter.Filter(msg, level); ignore {
			return
		}
	}
	if ce := l.Check(level, strings.TrimRight(msg, "\r\n")); ce != nil {
		ce.Write()
	}
}
