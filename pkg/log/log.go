// SPDX-License-Identifier: GPL-2.0-or-later

package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants, matching ffmpeg.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// UnixMicro timestamp.
type UnixMicro uint64

// Event defines log event. A nil *Event discards everything.
type Event struct {
	level Level
	time  UnixMicro
	src   string // Source.
	file  string // Container path.

	logger *Logger
}

// Log defines log entry.
type Log struct {
	Level Level
	Time  UnixMicro
	Msg   string
	Src   string
	File  string
}

// Src sets event source.
func (e *Event) Src(source string) *Event {
	if e == nil {
		return nil
	}
	e.src = source
	return e
}

// File sets the container the event is about.
func (e *Event) File(path string) *Event {
	if e == nil {
		return nil
	}
	e.file = path
	return e
}

// Time sets event time.
func (e *Event) Time(t time.Time) *Event {
	if e == nil {
		return nil
	}
	e.time = UnixMicro(t.UnixNano() / 1000)
	return e
}

// Msg sends the *Event with msg added as the message field.
func (e *Event) Msg(msg string) {
	if e == nil {
		return
	}
	e.logger.send(Log{
		Level: e.level,
		Time:  e.time,
		Msg:   msg,
		Src:   e.src,
		File:  e.file,
	})
}

// Msgf sends the event with formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, v...))
}

// Feed defines feed of logs.
type Feed <-chan Log
type logFeed chan Log

// Logger logs. Start must be called before events are sent.
type Logger struct {
	feed  logFeed      // feed of logs.
	sub   chan logFeed // subscribe requests.
	unsub chan logFeed // unsubscribe requests.
	done  chan struct{}

	wg *sync.WaitGroup
}

// NewLogger returns a Logger.
func NewLogger(wg *sync.WaitGroup) *Logger {
	return &Logger{
		feed:  make(logFeed),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),
		done:  make(chan struct{}),

		wg: wg,
	}
}

// Start logger.
func (l *Logger) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.done)

		subs := map[logFeed]struct{}{}
		for {
			select {
			case <-ctx.Done():
				return

			case ch := <-l.sub:
				subs[ch] = struct{}{}

			case ch := <-l.unsub:
				close(ch)
				delete(subs, ch)

			case msg := <-l.feed:
				for ch := range subs {
					ch <- msg
				}
			}
		}
	}()
}

func (l *Logger) send(log Log) {
	select {
	case l.feed <- log:
	case <-l.done:
	}
}

// CancelFunc cancels log feed subsciption.
type CancelFunc func()

// Subscribe returns a new chan with log feed and a CancelFunc.
// The chan is closed on cancel, or right away if the logger has stopped.
func (l *Logger) Subscribe() (<-chan Log, CancelFunc) {
	feed := make(logFeed)
	select {
	case l.sub <- feed:
	case <-l.done:
		close(feed)
		return feed, func() {}
	}

	cancel := func() {
		l.unSubscribe(feed)
	}
	return feed, cancel
}

func (l *Logger) unSubscribe(feed logFeed) {
	// Read feed until unsub request is accepted.
	for {
		select {
		case l.unsub <- feed:
			return
		case <-feed:
		case <-l.done:
			return
		}
	}
}

// LogToStdout prints log feed to Stdout.
func (l *Logger) LogToStdout(ctx context.Context) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case log, ok := <-feed:
			if !ok {
				return
			}
			fmt.Println(formatLog(log))
		case <-ctx.Done():
			return
		}
	}
}

func formatLog(log Log) string {
	var output string

	switch log.Level {
	case LevelError:
		output += "[ERROR] "
	case LevelWarning:
		output += "[WARNING] "
	case LevelInfo:
		output += "[INFO] "
	case LevelDebug:
		output += "[DEBUG] "
	}

	if log.File != "" {
		output += log.File + ": "
	}
	if log.Src != "" {
		output += strings.ToUpper(log.Src[:1]) + log.Src[1:] + ": "
	}

	return output + log.Msg
}

func (l *Logger) newEvent(level Level) *Event {
	if l == nil {
		return nil
	}
	return &Event{
		level:  level,
		time:   UnixMicro(time.Now().UnixNano() / 1000),
		logger: l,
	}
}

// Error starts a new message with error level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarning)
}

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}
