// Package voice turns session cues into speech requests. The speaker runs
// off the scheduling goroutine; nothing it returns reaches the session.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
)

// Speaker is the speech synthesis collaborator.
type Speaker interface {
	Speak(ctx context.Context, text string, opts models.CueOptions) error
	Cancel()
	Pause()
	Resume()
}

// DefaultQueueSize bounds pending utterances. Cues are time-sensitive, so a
// backlog is dropped rather than spoken late.
const DefaultQueueSize = 8

// TempoWord is the spoken form of a tempo phase.
func TempoWord(p models.PhaseKind) string {
	switch p {
	case models.PhaseEccentric:
		return "Down"
	case models.PhaseConcentric:
		return "Up"
	default:
		return "Hold"
	}
}

// CueText renders a cue event as speech. Tempo cues prefix the rep number
// on the first phase of each rep.
func CueText(ev session.CueEvent) string {
	if ev.Type != session.CueTempo {
		return ev.Text
	}
	word := TempoWord(ev.Phase)
	if ev.PhaseIndex == 0 && ev.Rep > 0 {
		return fmt.Sprintf("%d. %s", ev.Rep, word)
	}
	return word
}

type utterance struct {
	text string
	opts models.CueOptions
}

// Option configures an Announcer.
type Option func(*Announcer)

// WithQueueSize sets the pending utterance limit.
func WithQueueSize(n int) Option {
	return func(a *Announcer) {
		if n > 0 {
			a.max = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Announcer) { a.log = l } }

// Announcer subscribes to session events and feeds a Speaker from a single
// worker goroutine.
type Announcer struct {
	log     *slog.Logger
	speaker Speaker
	max     int

	mu     sync.Mutex
	queue  []utterance
	unsubs []func()

	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewAnnouncer starts the worker. Call Close to stop it.
func NewAnnouncer(sp Speaker, opts ...Option) *Announcer {
	a := &Announcer{
		log:     slog.Default(),
		speaker: sp,
		max:     DefaultQueueSize,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.work(ctx)
	return a
}

// Attach subscribes to e's cue, status and completion events.
func (a *Announcer) Attach(e *session.Engine) {
	unsubs := []func(){
		e.OnCue(func(ev session.CueEvent) {
			var opts models.CueOptions
			if ev.Options != nil {
				opts = *ev.Options
			}
			a.Say(CueText(ev), opts)
		}),
		e.OnStatusChange(func(ev session.StatusChangeEvent) {
			switch {
			case ev.To == session.StatePaused:
				a.speaker.Pause()
			case ev.From == session.StatePaused && ev.To == session.StateActive:
				a.speaker.Resume()
			}
		}),
		e.OnCompleted(func(ev session.CompletedEvent) {
			if ev.Aborted {
				a.Flush()
			}
		}),
	}
	a.mu.Lock()
	a.unsubs = append(a.unsubs, unsubs...)
	a.mu.Unlock()
}

// Say queues text. It never blocks. An interrupting cue discards whatever is
// pending and cuts off the current utterance.
func (a *Announcer) Say(text string, opts models.CueOptions) {
	if text == "" {
		return
	}
	a.mu.Lock()
	if opts.Interrupt {
		a.queue = a.queue[:0]
	}
	if len(a.queue) >= a.max {
		a.mu.Unlock()
		a.log.Warn("voice queue full, dropping cue", "text", text, "queue_len", a.max)
		return
	}
	a.queue = append(a.queue, utterance{text: text, opts: opts})
	a.mu.Unlock()

	if opts.Interrupt {
		a.speaker.Cancel()
	}
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Flush drops pending utterances and cancels the current one.
func (a *Announcer) Flush() {
	a.mu.Lock()
	a.queue = a.queue[:0]
	a.mu.Unlock()
	a.speaker.Cancel()
}

// Pending returns the number of queued utterances.
func (a *Announcer) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Close unsubscribes, stops the worker and waits for it to exit.
func (a *Announcer) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		unsubs := a.unsubs
		a.unsubs = nil
		a.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		a.cancel()
		a.speaker.Cancel()
		<-a.done
	})
}

func (a *Announcer) work(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.notify:
		}
		for {
			u, ok := a.pop()
			if !ok {
				break
			}
			if err := a.speaker.Speak(ctx, u.text, u.opts); err != nil && ctx.Err() == nil {
				a.log.Warn("speak failed", "text", u.text, "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (a *Announcer) pop() (utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return utterance{}, false
	}
	u := a.queue[0]
	a.queue = a.queue[1:]
	return u, true
}

// LogSpeaker writes utterances to a logger. It is the speaker used when no
// synthesis backend is available.
type LogSpeaker struct {
	log *slog.Logger

	mu     sync.Mutex
	paused bool
}

// NewLogSpeaker returns a speaker that logs at Info.
func NewLogSpeaker(log *slog.Logger) *LogSpeaker {
	return &LogSpeaker{log: log}
}

func (s *LogSpeaker) Speak(_ context.Context, text string, opts models.CueOptions) error {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	if paused {
		s.log.Debug("speech paused, skipping", "text", text)
		return nil
	}
	attrs := []any{"text", text}
	if opts.Voice != "" {
		attrs = append(attrs, "voice", opts.Voice)
	}
	s.log.Info("say", attrs...)
	return nil
}

func (s *LogSpeaker) Cancel() {}

func (s *LogSpeaker) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *LogSpeaker) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}
