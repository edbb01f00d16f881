// Package gc implements the persistence garbage collector: a single-threaded actor that scans the app/pod/root repositories
// for unreferenced versions, compacts them, and interleaves with
// concurrent stores so that "no write is lost to compaction."
package gc

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// Phase is one state of the GC finite-state machine.
type Phase int

const (
	Resting Phase = iota
	ReadyForGc
	Scanning
	Compacting
)

func (p Phase) String() string {
	switch p {
	case Resting:
		return "Resting"
	case ReadyForGc:
		return "ReadyForGc"
	case Scanning:
		return "Scanning"
	case Compacting:
		return "Compacting"
	default:
		return "Unknown"
	}
}

// EntityRef names one deletable unit: a whole entity (Version=="") or one
// specific version of it.
type EntityRef struct {
	Kind    string // "app" | "pod" | "root"
	Id      string
	Version string
}

func (r EntityRef) key() string {
	return r.Kind + "\x00" + r.Id + "\x00" + r.Version
}

// Compactor performs the actual repository deletions the scan decided on.
// Errors are logged and swallowed: GC must never crash
// the process over a bad delete.
type Compactor interface {
	DeleteVersions(ctx context.Context, refs []EntityRef) error
}

// FSM is the GC actor.
type FSM struct {
	cmds chan func()
	log  logr.Logger

	interval  time.Duration
	scanner   *Scanner
	compactor Compactor

	phase          Phase
	updatedEntities map[string]bool
	blockedEntities map[string]bool
	waiters         map[string][]chan struct{}
	gcRequested     bool

	pendingDeletion []EntityRef
}

// New constructs an FSM. If interval <= 0 the machine starts directly in
// ReadyForGc rather than Resting.
func New(interval time.Duration, scanner *Scanner, compactor Compactor, log logr.Logger) *FSM {
	phase := Resting
	if interval <= 0 {
		phase = ReadyForGc
	}
	return &FSM{
		cmds:            make(chan func(), 16),
		log:             log.WithValues("component", "gc"),
		interval:        interval,
		scanner:         scanner,
		compactor:       compactor,
		phase:           phase,
		updatedEntities: map[string]bool{},
		blockedEntities: map[string]bool{},
		waiters:         map[string][]chan struct{}{},
	}
}

// Run drives the actor loop until ctx is cancelled. It owns the
// Resting→ReadyForGc timer.
func (f *FSM) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	if f.phase == Resting && f.interval > 0 {
		timer = time.NewTimer(f.interval)
		timerC = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case fn := <-f.cmds:
			fn()
		case <-timerC:
			f.restingElapsed()
			timerC = nil
		}
		if f.phase == Resting && timerC == nil && f.interval > 0 {
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(f.interval)
			timerC = timer.C
		}
	}
}

// CurrentPhase returns the current phase. It hops through the command
// channel, so it is safe from any goroutine except the run loop's own,
// where it would block forever.
func (f *FSM) CurrentPhase() Phase {
	out := make(chan Phase, 1)
	f.cmds <- func() { out <- f.phase }
	return <-out
}

func (f *FSM) restingElapsed() {
	if f.phase == Resting {
		f.phase = ReadyForGc
	}
}

// RunGC requests a scan.
func (f *FSM) RunGC(ctx context.Context) {
	done := make(chan struct{})
	f.cmds <- func() { f.runGC(ctx); close(done) }
	<-done
}

func (f *FSM) runGC(ctx context.Context) {
	switch f.phase {
	case ReadyForGc:
		f.phase = Scanning
		f.updatedEntities = map[string]bool{}
		go f.doScan(ctx)
	case Scanning, Compacting:
		f.gcRequested = true
	case Resting:
		f.phase = Scanning
		f.updatedEntities = map[string]bool{}
		go f.doScan(ctx)
	}
}

func (f *FSM) doScan(ctx context.Context) {
	result, err := f.scanner.Scan(ctx)
	if err != nil {
		f.log.Error(err, "scan failed; treating as nothing to delete")
		result = ScanResult{}
	}
	f.cmds <- func() { f.scanDone(ctx, result) }
}

func (f *FSM) scanDone(ctx context.Context, result ScanResult) {
	candidates := result.All()
	var remaining []EntityRef
	for _, ref := range candidates {
		if !f.updatedEntities[ref.key()] {
			remaining = append(remaining, ref)
		}
	}

	if len(remaining) == 0 {
		f.afterIdle()
		return
	}

	f.phase = Compacting
	f.blockedEntities = map[string]bool{}
	for _, ref := range remaining {
		f.blockedEntities[ref.key()] = true
	}
	f.pendingDeletion = remaining
	go f.doCompact(ctx, remaining)
}

func (f *FSM) doCompact(ctx context.Context, refs []EntityRef) {
	if err := f.compactor.DeleteVersions(ctx, refs); err != nil {
		f.log.Error(err, "compaction failed; dropping this pass")
	}
	f.cmds <- func() { f.compactDone() }
}

func (f *FSM) compactDone() {
	for _, waiters := range f.waiters {
		for _, w := range waiters {
			close(w)
		}
	}
	f.waiters = map[string][]chan struct{}{}
	f.blockedEntities = map[string]bool{}
	f.pendingDeletion = nil
	f.afterIdle()
}

// afterIdle implements the "ReadyForGc (or Scanning if gcRequested; or
// Resting if interval>0)" branch shared by ScanDone's empty case and
// CompactDone.
func (f *FSM) afterIdle() {
	if f.gcRequested {
		f.gcRequested = false
		f.phase = Scanning
		f.updatedEntities = map[string]bool{}
		go f.doScan(context.Background())
		return
	}
	if f.interval > 0 {
		f.phase = Resting
		return
	}
	f.phase = ReadyForGc
}

// Guard wraps a repository store call with the interleaving rule: while
// Scanning it always admits immediately and records ref in
// updatedEntities; while Compacting it blocks until CompactDone if ref
// is in the current deletion set; otherwise it admits immediately.
func (f *FSM) Guard(ctx context.Context, ref EntityRef, storeFn func() error) error {
	admit := make(chan struct{})
	f.cmds <- func() { f.admitOrQueue(ref, admit) }
	select {
	case <-admit:
	case <-ctx.Done():
		return ctx.Err()
	}
	return storeFn()
}

func (f *FSM) admitOrQueue(ref EntityRef, admit chan struct{}) {
	switch f.phase {
	case Scanning:
		f.updatedEntities[ref.key()] = true
		close(admit)
	case Compacting:
		if f.blockedEntities[ref.key()] {
			f.waiters[ref.key()] = append(f.waiters[ref.key()], admit)
			return
		}
		close(admit)
	default:
		close(admit)
	}
}
