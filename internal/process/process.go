// Package process implements the lazy process manager (component H,
// spec §4.H): a static command→module mapping, on-demand module loading
// through internal/modcache, and LazyProcess handles with buffered
// stdio, an exit code, and a poll/resolve/signal surface.
//
// No file in the retrieval pack implements this component directly — the
// teacher (tetratelabs/wazero) never spawns guest-to-guest commands, and
// spec §1 excludes "the specific external git/sqlite/language engines
// that ship as guest components" as a collaborator — so the state
// machine here is built strictly from spec §4.H's prose, reusing
// internal/stdio.Queue (component K) for every byte buffer a
// LazyProcess owns, the way spec §1 describes "a stream and pollable
// layer shared by both" the filesystem host and the process manager.
package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tjfontaine/wasihost/internal/modcache"
	"github.com/tjfontaine/wasihost/internal/stdio"
)

// Signal names the two signals spec §4.H gives meaning to.
type Signal int32

const (
	SIGINT  Signal = 2
	SIGTERM Signal = 15
)

// State is the one-way created→started→exited state machine from spec
// §3 "LazyProcess".
type State uint8

const (
	StateCreated State = iota
	StateStarted
	StateExited
)

const (
	defaultStdoutChunk = 8192
	defaultStderrChunk = 1024
)

// Env is a command's environment, spec §3 "env{cwd, vars}".
type Env struct {
	Cwd  string
	Vars map[string]string
}

// TerminalSize is the `{cols, rows}` pair spec §6 names for the
// terminal-info interface.
type TerminalSize struct {
	Cols uint16
	Rows uint16
}

// SpawnOpts selects batch vs. interactive mode (spec §4.H) and, for
// interactive mode, the initial terminal size.
type SpawnOpts struct {
	Interactive  bool
	TerminalSize TerminalSize
}

// CommandHandle is the handle a module's execution exposes, per spec
// §4.H "Module spawning itself exposes a CommandHandle". *LazyProcess
// satisfies it, so a caller that only cares about exit status (rather
// than stdio) can hold the narrower interface.
type CommandHandle interface {
	// Poll returns the exit code if the command has finished, else ok
	// is false.
	Poll() (code int32, ok bool)
	// Resolve blocks until the command finishes and returns its exit
	// code. It drains nothing: LazyProcess.Resolve leaves residual
	// output buffered for later reads.
	Resolve() int32
}

// LazyProcess is the guest-facing handle over a spawned command, per spec
// §3. All exported methods are safe for concurrent use.
type LazyProcess struct {
	moduleName string
	command    string
	args       []string
	env        Env
	spanID     string

	cache  *modcache.Cache
	logger *zap.Logger

	stdin  *stdio.Queue
	stdout *stdio.Queue
	stderr *stdio.Queue

	stdoutChunk int
	stderrChunk int

	mu          sync.Mutex
	state       State
	started     bool
	interactive bool
	rawMode     bool
	terminal    TerminalSize
	exitCode    *int32

	execDone chan struct{}
	termOnce sync.Once
	termDone chan struct{}
	resizeCh chan TerminalSize
}

// newLazyProcess constructs a process in the Created state. Not exported:
// callers go through Manager.Spawn, which resolves moduleName from the
// command registry first.
func newLazyProcess(moduleName, command string, args []string, env Env, cache *modcache.Cache, logger *zap.Logger, stdoutChunk, stderrChunk int, opts SpawnOpts) *LazyProcess {
	if stdoutChunk <= 0 {
		stdoutChunk = defaultStdoutChunk
	}
	if stderrChunk <= 0 {
		stderrChunk = defaultStderrChunk
	}
	return &LazyProcess{
		moduleName:  moduleName,
		command:     command,
		args:        args,
		env:         env,
		spanID:      uuid.NewString(),
		cache:       cache,
		logger:      logger,
		stdin:       stdio.NewQueue(),
		stdout:      stdio.NewQueue(),
		stderr:      stdio.NewQueue(),
		stdoutChunk: stdoutChunk,
		stderrChunk: stderrChunk,
		interactive: opts.Interactive,
		terminal:    opts.TerminalSize,
		execDone:    make(chan struct{}),
		termDone:    make(chan struct{}),
		resizeCh:    make(chan TerminalSize, 1),
	}
}

// moduleUnavailable builds a process that is already exited with code
// 127, for a command whose module could not be resolved at spawn time
// (spec §4.H "(or 127 if the module is unavailable)").
func moduleUnavailable(command string) *LazyProcess {
	p := newLazyProcess("", command, nil, Env{}, nil, zap.NewNop(), 0, 0, SpawnOpts{})
	p.stderr.Write([]byte(fmt.Sprintf("%s: command not found\n", command)))
	p.stderr.Close()
	p.stdout.Close()
	code := int32(127)
	p.state = StateExited
	p.exitCode = &code
	close(p.execDone)
	close(p.termDone)
	return p
}

// WriteStdin appends data to the process's stdin queue and returns how
// many bytes were accepted. Once the process has exited, writes return
// zero and do nothing, per spec §3's LazyProcess invariant.
func (p *LazyProcess) WriteStdin(data []byte) uint64 {
	p.mu.Lock()
	exited := p.state == StateExited
	p.mu.Unlock()
	if exited {
		return 0
	}
	p.stdin.Write(data)
	return uint64(len(data))
}

// CloseStdin closes the stdin queue and, in batch mode, begins execution
// against the now-fixed (concatenated) stdin contents — spec §4.H "Batch
// mode. The embedder writes zero or more stdin chunks, then calls
// close_stdin(); this transitions started=false → true". In interactive
// mode stdin is already live (Execute was called at spawn time), so this
// only signals EOF to the guest's stdin reads.
func (p *LazyProcess) CloseStdin() {
	p.stdin.Close()
	p.start()
}

// Execute begins interactive-mode execution immediately, with stdin read
// live from the queue and raw_mode set, per spec §4.H "Interactive mode".
func (p *LazyProcess) Execute() {
	p.mu.Lock()
	p.interactive = true
	p.rawMode = true
	p.mu.Unlock()
	p.start()
}

// start transitions created→started exactly once and launches the
// module's RunFunc on a goroutine. Safe to call multiple times (only the
// first call has effect), since both CloseStdin and Execute call it.
func (p *LazyProcess) start() {
	p.mu.Lock()
	if p.started || p.state == StateExited {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.state = StateStarted
	p.mu.Unlock()

	go p.run()
}

// run loads the module, invokes its RunFunc, and records the exit code.
// No panic or error from the module escapes this goroutine: per spec §7
// "Exceptions and panics from host code are caught at the import
// boundary and converted to... never allowed to unwind into the guest",
// applied here to a guest command's own execution.
func (p *LazyProcess) run() {
	defer p.finishRecover()

	mod, err := p.cache.Load(p.moduleName)
	if err != nil {
		p.logger.Warn("lazy module load failed",
			zap.String("span", p.spanID), zap.String("module", p.moduleName), zap.Error(err))
		p.finish(127, []byte(err.Error()+"\n"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-p.termDone:
			cancel()
		case <-p.execDone:
		}
	}()
	defer cancel()

	rc := modcache.RunContext{
		Args:   p.args,
		Env:    p.env.Vars,
		Cwd:    p.env.Cwd,
		Stdin:  p.stdin,
		Stdout: writerFunc(p.stdout.Write),
		Stderr: writerFunc(p.stderr.Write),
	}
	code := mod.Run(ctx, rc)
	p.finish(code, nil)
}

// finishRecover converts a panicking module into exit code 1 plus a
// stderr line, per spec §4.H "any failure materializes as stderr bytes
// plus exit_code = 1".
func (p *LazyProcess) finishRecover() {
	if r := recover(); r != nil {
		p.logger.Warn("lazy process panicked",
			zap.String("span", p.spanID), zap.String("module", p.moduleName), zap.Any("recover", r))
		p.finish(1, []byte(fmt.Sprintf("%v\n", r)))
	}
}

// finish records code as the exit code (if one isn't already recorded —
// SIGTERM may have set it first), drains nothing further, closes the
// output queues, and unblocks Resolve/Poll waiters. Exit monotonicity
// (spec §8) follows from exitCode being set at most once.
func (p *LazyProcess) finish(code int32, extraStderr []byte) {
	if len(extraStderr) > 0 {
		p.stderr.Write(extraStderr)
	}
	p.stdout.Close()
	p.stderr.Close()

	p.mu.Lock()
	if p.exitCode == nil {
		p.exitCode = &code
	}
	p.state = StateExited
	p.mu.Unlock()

	select {
	case <-p.execDone:
	default:
		close(p.execDone)
	}
}

// Poll returns the exit code if the process has exited, per spec §4.H
// "poll() returns the exit code if available else none."
func (p *LazyProcess) Poll() (code int32, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return 0, false
	}
	return *p.exitCode, true
}

// Resolve awaits execution completion (starting it first if the embedder
// never called CloseStdin/Execute, since there is otherwise nothing to
// await) and returns the exit code, per spec §4.H "resolve() awaits
// execution completion... then returns the exit code."
func (p *LazyProcess) Resolve() int32 {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		p.start()
	}
	<-p.execDone
	code, _ := p.Poll()
	return code
}

// ReadStdout returns up to min(max, 8192) bytes of buffered stdout, per
// spec §4.H "Stdout reads are capped at an 8 KiB chunk per call".
func (p *LazyProcess) ReadStdout(max uint32) []byte {
	return readCapped(p.stdout, max, p.stdoutChunk)
}

// ReadStderr returns up to min(max, 1024) bytes of buffered stderr, per
// spec §4.H "...stderr at 1 KiB".
func (p *LazyProcess) ReadStderr(max uint32) []byte {
	return readCapped(p.stderr, max, p.stderrChunk)
}

func readCapped(q *stdio.Queue, max uint32, chunk int) []byte {
	n := int(max)
	if n <= 0 || n > chunk {
		n = chunk
	}
	data, _ := q.ReadNonBlocking(n)
	return data
}

// SendSignal delivers n to the process, per spec §4.H: SIGINT injects
// 0x03 into live stdin; SIGTERM records exit code 128+n immediately and
// marks the process for termination at its next suspension point
// (DESIGN.md open question 2 decides against preempting a running
// guest). Any other signal, and a SIGTERM delivered to an already-exited
// process, is a no-op — "further writes and signals are no-ops (except
// SIGTERM, which is idempotent)".
func (p *LazyProcess) SendSignal(n int32) {
	switch Signal(n) {
	case SIGINT:
		p.stdin.Write([]byte{0x03})
	case SIGTERM:
		p.mu.Lock()
		if p.exitCode == nil {
			code := int32(128 + n)
			p.exitCode = &code
			p.state = StateExited
		}
		p.mu.Unlock()
		p.termOnce.Do(func() { close(p.termDone) })
	}
}

// SetTerminalSize updates the stored terminal size and, if a consumer is
// watching Resize(), delivers an out-of-band resize notice — spec §4.H
// "if implemented, delivers an out-of-band resize notice to the guest."
func (p *LazyProcess) SetTerminalSize(sz TerminalSize) {
	p.mu.Lock()
	p.terminal = sz
	p.mu.Unlock()
	select {
	case p.resizeCh <- sz:
	default:
		select {
		case <-p.resizeCh:
		default:
		}
		select {
		case p.resizeCh <- sz:
		default:
		}
	}
}

// TerminalSize returns the process's current terminal size.
func (p *LazyProcess) TerminalSize() TerminalSize {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

// Resize exposes the out-of-band resize channel a RunFunc may select on.
func (p *LazyProcess) Resize() <-chan TerminalSize { return p.resizeCh }

// SetRawMode sets the terminal raw-mode flag directly, for embedders that
// toggle it outside of Execute's automatic interactive-mode default.
func (p *LazyProcess) SetRawMode(raw bool) {
	p.mu.Lock()
	p.rawMode = raw
	p.mu.Unlock()
}

// IsRawMode reports the current raw-mode flag.
func (p *LazyProcess) IsRawMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rawMode
}

// State reports the process's current lifecycle state.
func (p *LazyProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// writerFunc adapts a func([]byte) into an io.Writer for modcache.RunContext.
type writerFunc func([]byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}
