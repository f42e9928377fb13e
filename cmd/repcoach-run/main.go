package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/runner"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/timeline"
	"github.com/claude/repcoach/internal/voice"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	file := flag.String("file", "", "workout definition file (.yaml, .yml or .json)")
	rest := flag.Float64("rest", 0, "rest between major lift sets in seconds (default 90)")
	accessoryRest := flag.Float64("accessory-rest", 0, "rest between accessory sets in seconds (default 60)")
	cycle := flag.Int("cycle", 0, "completed progression cycles")
	increment := flag.Float64("increment", 0, "training max increase per cycle in kg")
	noTempo := flag.Bool("no-tempo", false, "time work steps by rep count instead of tempo")
	noCountdown := flag.Bool("no-countdown", false, "drop rest countdown cues")
	tick := flag.Duration("tick", runner.DefaultInterval, "update interval")
	preview := flag.Bool("preview", false, "print the timeline and exit")
	debug := flag.Bool("debug", false, "log engine transitions")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-run", Version)
		return
	}
	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-run -file workout.yaml [-preview] [-rest N] [-cycle N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	def, err := timeline.LoadDefinitionFile(*file)
	if err != nil {
		log.Error("failed to load definition", "error", err)
		os.Exit(1)
	}

	settings := models.Settings{
		RestSeconds:          *rest,
		AccessoryRestSeconds: *accessoryRest,
		Progression:          models.Progression{Cycle: *cycle, IncrementKg: *increment},
	}
	if *noTempo {
		settings.TempoEnabled = new(bool)
	}
	if *noCountdown {
		settings.CountdownCues = new(bool)
	}
	settings = settings.WithDefaults()

	steps, err := timeline.Build(def, settings)
	if err != nil {
		log.Error("failed to build timeline", "error", err)
		os.Exit(1)
	}

	if *preview {
		printTimeline(def.Name, steps)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := session.New(steps, session.WithLogger(log), session.WithSettings(settings))
	run := runner.New(eng, runner.WithInterval(*tick), runner.WithLogger(log))

	announcer := voice.NewAnnouncer(voice.NewLogSpeaker(log), voice.WithLogger(log))
	defer announcer.Close()
	announcer.Attach(eng)

	eng.OnStepChange(func(ev session.StepChangeEvent) {
		log.Info("step", "index", ev.Index, "of", eng.Len(), "type", ev.Step.Type,
			"exercise", ev.Step.ExerciseName, "seconds", ev.Step.Duration)
	})
	eng.OnCompleted(func(ev session.CompletedEvent) {
		log.Info("session finished",
			"elapsed", time.Duration(ev.ElapsedSeconds*float64(time.Second)).Round(time.Second),
			"steps_reached", ev.StepsReached,
			"steps_total", ev.StepsTotal,
			"aborted", ev.Aborted,
		)
	})

	fmt.Fprintln(os.Stderr, "commands: p pause, r resume, n next, b back, s skip exercise, q stop")
	go readCommands(ctx, run, eng)

	run.Do(eng.Start)
	if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("runner failed", "error", err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		run.Do(eng.Stop)
	}
}

// readCommands maps single-letter stdin lines onto transport calls.
func readCommands(ctx context.Context, run *runner.Runner, eng *session.Engine) {
	actions := map[string]func(){
		"p": eng.Pause,
		"r": eng.Resume,
		"n": eng.Next,
		"b": eng.Previous,
		"s": eng.SkipExercise,
		"q": eng.Stop,
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if fn, ok := actions[strings.TrimSpace(sc.Text())]; ok {
			run.Do(fn)
		}
	}
}

func printTimeline(name string, steps []models.Step) {
	fmt.Printf("%s: %d steps, %s\n\n", name, len(steps),
		time.Duration(timeline.TotalSeconds(steps)*float64(time.Second)).Round(time.Second))
	for i, s := range steps {
		line := fmt.Sprintf("%3d  %-10s %6.0fs", i, s.Type, s.Duration)
		if s.ExerciseName != "" {
			line += "  " + s.ExerciseName
		}
		if s.TotalSets > 0 {
			line += fmt.Sprintf(" %d/%d", s.SetNumber, s.TotalSets)
		}
		if s.TargetReps > 0 {
			line += fmt.Sprintf(" x%d", s.TargetReps)
		}
		if s.Load != nil {
			line += fmt.Sprintf(" @ %g kg", *s.Load)
		}
		fmt.Println(line)
	}
}
