// Package stw implements the stop-the-world handshake protocol (spec
// §4.7, Component 8): signal every registered thread to suspend, retry
// threads caught inside the managed allocator until none remain, and
// measure the pause.
package stw

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/log"
)

// Thread is the narrow view the STW protocol needs of a registered
// mutator thread (spec §6 callbacks: thread_suspend, thread_resume,
// is_ip_in_managed_allocator).
type Thread interface {
	ID() uint64
	Suspend() error
	Resume() error
	// InManagedAllocator reports whether the thread, at the instant it
	// acknowledged suspension, was inside the managed allocator — its
	// allocation is not atomic with respect to GC state, so it must be
	// let run until it leaves (spec §4.7).
	InManagedAllocator() bool
	// AckSuspend blocks (with ctx) until the thread acknowledges the
	// suspend request, or returns an error if the thread is dead.
	AckSuspend(ctx context.Context) error
}

// Registry supplies the live thread set at the moment STW begins.
type Registry interface {
	LiveThreads() []Thread
}

// Protocol drives one stop/restart cycle. It is not reentrant: the caller
// must already hold the GC lock (spec §5 "GC lock").
type Protocol struct {
	reg Registry

	mu          sync.Mutex // interruption lock
	inSTW       bool
	skipped     map[uint64]bool
	lastPauseNS int64
}

func New(reg Registry) *Protocol {
	return &Protocol{reg: reg, skipped: make(map[uint64]bool)}
}

// MaxHandshakeRounds bounds the retry loop so a permanently-parked thread
// cannot stall STW forever; spec §8 scenario S6 requires "total rounds <=
// some bound".
const MaxHandshakeRounds = 64

// Stop suspends every live thread except selfID — the thread initiating
// the collection, which captures its own state directly rather than
// being suspended and acknowledging its own suspend request (spec §4.7:
// "all other registered threads are signaled to suspend"). Pass 0 if the
// calling goroutine is not itself a registered mutator thread (no ID is
// ever assigned 0, so nothing is excluded). It returns a Token to pass to
// Restart; Restart returns the measured pause, which LastPause also
// reports afterwards. The interruption lock (mu) taken here is held until
// Restart releases it.
func (p *Protocol) Stop(ctx context.Context, selfID uint64) (*Token, error) {
	p.mu.Lock()
	start := time.Now()
	p.inSTW = true

	threads := p.reg.LiveThreads()
	tok := &Token{start: start}
	var skipMu sync.Mutex // guards p.skipped; p.mu stays held until Restart

	for round := 0; round < MaxHandshakeRounds; round++ {
		g, gctx := errgroup.WithContext(ctx)
		inAllocator := make([]bool, len(threads))
		for i, t := range threads {
			i, t := i, t
			if p.skipped[t.ID()] || t.ID() == selfID {
				continue
			}
			g.Go(func() error {
				if err := t.Suspend(); err != nil {
					return err
				}
				if err := t.AckSuspend(gctx); err != nil {
					// Thread died mid-handshake; recovered locally
					// (spec §7 "Thread disappeared during handshake").
					skipMu.Lock()
					p.skipped[t.ID()] = true
					skipMu.Unlock()
					log.Debug.Printf("stw: thread %d did not ack, marked skip", t.ID())
					return nil
				}
				inAllocator[i] = t.InManagedAllocator()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		any := false
		for i, t := range threads {
			if inAllocator[i] {
				any = true
				if err := t.Resume(); err != nil {
					return nil, err
				}
			}
		}
		if !any {
			tok.rounds = round + 1
			return tok, nil
		}
		// Threads we resumed need to be re-suspended next round; all
		// others stay suspended. errgroup above already re-suspends
		// every live thread each round, which is correct but not
		// minimal — acceptable given STW rounds are rare and short.
	}
	return tok, errTooManyRounds
}

// Token is returned by Stop and consumed by Restart.
type Token struct {
	start  time.Time
	rounds int
}

func (t *Token) Rounds() int { return t.rounds }

// Restart resumes every live thread except selfID (which was never
// suspended by Stop) and records the pause duration (spec §4.7 "Pause
// time is measured across stop->restart").
func (p *Protocol) Restart(tok *Token, selfID uint64) time.Duration {
	threads := p.reg.LiveThreads()
	for _, t := range threads {
		if p.skipped[t.ID()] || t.ID() == selfID {
			continue
		}
		_ = t.Resume()
	}
	dur := time.Since(tok.start)
	p.inSTW = false
	p.lastPauseNS = dur.Nanoseconds()
	p.mu.Unlock()
	return dur
}

// LastPause returns the most recently measured pause duration, the
// "observable stop-duration counter" of spec §8 scenario S6.
func (p *Protocol) LastPause() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.lastPauseNS)
}

func (p *Protocol) InSTW() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inSTW
}

var errTooManyRounds = errSentinel("stw: exceeded max handshake rounds")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
