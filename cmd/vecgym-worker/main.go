// Command vecgym-worker is the process bootstrap for one vectorized
// emulator worker: parse the fixed positional argv, wire an emulator
// factory, and run the worker until it quits or its parent orchestrator
// closes the control pipes.
//
// Mirrors cmd/ublk-mem/main.go's shape (a single-purpose bootstrap
// binary: parse inputs, construct the one backend this program needs,
// hand it to the library's entrypoint, translate the returned error
// into an exit code).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	vecgym "github.com/atari-vecgym/vecgym-worker"
	"github.com/atari-vecgym/vecgym-worker/internal/emu"
	"github.com/atari-vecgym/vecgym-worker/internal/logging"
)

// argv layout. Index 0 is the program name.
const (
	argPrefix = iota + 1
	argEnvID
	argROM
	argMonitorDir
	argLump
	argCPU
	argNCPU
	argBunch
	argSteps
	argSkip
	argStack
	argReadFD
	argWriteFD
	argCount // one past the last required positional index
)

func main() {
	if len(os.Args) < argCount {
		fmt.Fprintln(os.Stderr, "I need more command line arguments!")
		os.Exit(1)
	}

	cfg, err := parseConfig(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vecgym-worker: bad argument: %v\n", err)
		os.Exit(1)
	}

	installStackDumpHandler(cfg.CPU)

	w, err := vecgym.New(cfg, emu.New, vecgym.NoOpObserver{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vecgym-worker: cpu=%d: %v\n", cfg.CPU, err)
		os.Exit(1)
	}

	if err := w.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "vecgym-worker: cpu=%d: %v\n", cfg.CPU, err)
		os.Exit(1)
	}
}

// installStackDumpHandler starts a goroutine that dumps every goroutine's
// stack to stderr on SIGUSR1, for debugging a wedged worker without
// killing it.
func installStackDumpHandler(cpu int) {
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		buf := make([]byte, 1<<20)
		for range stackDumpCh {
			n := runtime.Stack(buf, true)
			logging.Info("stack dump requested", "cpu", cpu)
			fmt.Fprintf(os.Stderr, "=== vecgym-worker cpu=%d stack dump ===\n%s=== end stack dump ===\n", cpu, buf[:n])
		}
	}()
}

func parseConfig(argv []string) (vecgym.Config, error) {
	lump, err := strconv.Atoi(argv[argLump])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("LUMP: %w", err)
	}
	cpu, err := strconv.Atoi(argv[argCPU])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("CPU: %w", err)
	}
	ncpu, err := strconv.Atoi(argv[argNCPU])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("NCPU: %w", err)
	}
	bunch, err := strconv.Atoi(argv[argBunch])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("BUNCH: %w", err)
	}
	steps, err := strconv.Atoi(argv[argSteps])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("STEPS: %w", err)
	}
	skip, err := strconv.Atoi(argv[argSkip])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("SKIP: %w", err)
	}
	stack, err := strconv.Atoi(argv[argStack])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("STACK: %w", err)
	}
	readFD, err := strconv.Atoi(argv[argReadFD])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("P2C_R: %w", err)
	}
	writeFD, err := strconv.Atoi(argv[argWriteFD])
	if err != nil {
		return vecgym.Config{}, fmt.Errorf("C2P_W: %w", err)
	}

	if lump < 1 || lump > 8 {
		return vecgym.Config{}, fmt.Errorf("LUMP: %d out of range [1,8]", lump)
	}

	logging.Info("vecgym-worker starting", "cpu", cpu, "lump", lump, "ncpu", ncpu, "bunch", bunch)

	return vecgym.Config{
		Prefix:     argv[argPrefix],
		EnvID:      argv[argEnvID],
		ROM:        argv[argROM],
		MonitorDir: argv[argMonitorDir],
		Lump:       lump,
		CPU:        cpu,
		NCPU:       ncpu,
		Bunch:      bunch,
		Steps:      steps,
		Skip:       skip,
		Stack:      stack,
		ReadFD:     readFD,
		WriteFD:    writeFD,
	}, nil
}
