package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fakeRunner records invocations, writes the output file of every ffmpeg or
// espeak-ng call and answers ffprobe from a duration table.
type fakeRunner struct {
	mu        sync.Mutex
	calls     [][]string
	durations map[string]float64
	failOn    string // fail any call whose args contain this substring
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{durations: make(map[string]float64)}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{name}, args...))

	if f.failOn != "" && strings.Contains(strings.Join(args, " "), f.failOn) {
		return CommandResult{Stderr: "simulated failure", ExitCode: 1}, errors.New("exit status 1")
	}

	switch name {
	case "ffprobe":
		d, ok := f.durations[args[len(args)-1]]
		if !ok {
			return CommandResult{Stderr: "No such file", ExitCode: 1}, errors.New("exit status 1")
		}
		return CommandResult{Stdout: fmt.Sprintf("%.3f\n", d)}, nil
	case "espeak-ng":
		out := argAfter(args, "-w")
		return CommandResult{}, os.WriteFile(out, []byte("RIFF"), 0644)
	default:
		out := args[len(args)-1]
		return CommandResult{}, os.WriteFile(out, []byte("media"), 0644)
	}
}

func (f *fakeRunner) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeRunner) callsTo(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}
