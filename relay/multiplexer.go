package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/event"
)

// Pool is the process-wide relay handle cache: lazily initialized, reused
// across Fetch calls, and closed exactly once on shutdown.
type Pool struct {
	// DialTimeout caps the websocket handshake per connection attempt.
	DialTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewPool creates an empty, ready-to-use relay pool.
func NewPool() *Pool {
	return &Pool{DialTimeout: 10 * time.Second, handles: make(map[string]*Handle)}
}

// ensureRelay returns the pool's handle for url, dialing it if this is the
// first use or if a previous connection was closed.
func (p *Pool) ensureRelay(ctx context.Context, url string) (*Handle, error) {
	p.mu.Lock()
	h, ok := p.handles[url]
	if !ok || h.State() == StateClosed {
		h = newHandle(url, p.DialTimeout)
		p.handles[url] = h
	}
	p.mu.Unlock()

	if h.State() == StateConnected {
		return h, nil
	}
	if err := h.connect(ctx); err != nil {
		return h, err
	}
	return h, nil
}

// ClosePool closes every pooled connection. Safe to call once at shutdown;
// individual close errors are swallowed since nothing downstream can act on
// them once the process is exiting.
func (p *Pool) ClosePool() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		h.close()
	}
}

// relaySignal pairs one relay's frame with the relay it came from, so the
// drain loop can count EOSE per relay while deduplicating events globally.
type relaySignal struct {
	relay string
	f     frame
}

// Fetch implements the multiplexer contract: subscribe to every relay in
// relayURLs in parallel, admit each event at most once by id, and resolve
// at the earliest of all-eose, early-exit (if enabled, at least one EOSE
// and minResults admitted), or budget exhaustion. An empty relay set
// resolves immediately with an empty result, and a connect failure on
// every relay yields an empty result rather than an error — per the
// multiplexer's contract, Fetch itself never returns an error.
func Fetch(ctx context.Context, pool *Pool, filters []event.Filter, relayURLs []string, budget time.Duration, earlyExit bool, minResults int) []event.Event {
	if len(relayURLs) == 0 {
		return []event.Event{}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	signals := make(chan relaySignal, 256)
	subIDs := make(map[string]string, len(relayURLs))

	var handlesMu sync.Mutex
	handles := make(map[string]*Handle, len(relayURLs))

	group, groupCtx := errgroup.WithContext(fetchCtx)

	// send must never block past the drain loop's exit: once the loop has
	// resolved, nobody reads signals, so a bare channel send would leak the
	// goroutine. The context case unblocks it when Fetch returns.
	send := func(sig relaySignal) {
		select {
		case signals <- sig:
		case <-groupCtx.Done():
		}
	}

	for _, url := range relayURLs {
		url := url
		subID := uuid.NewString()
		subIDs[url] = subID

		group.Go(func() error {
			h, err := pool.ensureRelay(groupCtx, url)
			if err != nil {
				// A subscribe/connect failure against one relay is treated
				// as an instant end-of-stream for that relay; it never
				// fails the overall fetch.
				send(relaySignal{relay: url, f: frame{kind: frameEOSE}})
				return nil
			}

			ch := h.register(subID)
			defer h.unregister(subID)

			if err := h.sendREQ(subID, filters); err != nil {
				send(relaySignal{relay: url, f: frame{kind: frameEOSE}})
				return nil
			}

			handlesMu.Lock()
			handles[url] = h
			handlesMu.Unlock()

			for {
				select {
				case <-groupCtx.Done():
					return nil
				case f, ok := <-ch:
					if !ok {
						return nil
					}
					send(relaySignal{relay: url, f: f})
					if f.kind == frameEOSE || f.kind == frameError {
						return nil
					}
				}
			}
		})
	}

	go func() {
		_ = group.Wait()
		close(signals)
	}()

	admitted := make(map[string]event.Event)
	eoseRelays := make(map[string]bool)

loop:
	for {
		select {
		case <-fetchCtx.Done():
			break loop
		case sig, ok := <-signals:
			if !ok {
				break loop
			}
			switch sig.f.kind {
			case frameEvent:
				if _, seen := admitted[sig.f.event.ID]; !seen {
					admitted[sig.f.event.ID] = sig.f.event
				}
			case frameEOSE, frameError:
				eoseRelays[sig.relay] = true
			}

			if len(eoseRelays) == len(relayURLs) {
				break loop
			}
			if earlyExit && len(eoseRelays) >= 1 && len(admitted) >= minResults {
				break loop
			}
		}
	}

	handlesMu.Lock()
	for url, subID := range subIDs {
		h, ok := handles[url]
		if !ok {
			continue
		}
		_ = h.sendClose(subID)
	}
	handlesMu.Unlock()

	out := make([]event.Event, 0, len(admitted))
	for _, ev := range admitted {
		out = append(out, ev)
	}

	common.Logger.WithField("relays", len(relayURLs)).
		WithField("admitted", len(out)).
		Debug("multiplexer fetch resolved")

	return out
}

// Fetch is the Pool-bound convenience form of the package-level Fetch
// function, letting collaborators (the assembler, the orchestrator) depend on a small Fetcher interface rather than the
// concrete Pool type.
func (p *Pool) Fetch(ctx context.Context, filters []event.Filter, relayURLs []string, budget time.Duration, earlyExit bool, minResults int) []event.Event {
	return Fetch(ctx, p, filters, relayURLs, budget, earlyExit, minResults)
}

// Probe implements the relay connectivity check: budget 2s, no early-exit,
// success on either an event or an end-of-stream.
func Probe(ctx context.Context, pool *Pool, url string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := pool.ensureRelay(probeCtx, url)
	if err != nil {
		return false
	}

	subID := uuid.NewString()
	ch := h.register(subID)
	defer h.unregister(subID)

	if err := h.sendREQ(subID, []event.Filter{{Limit: 1}}); err != nil {
		return false
	}

	select {
	case <-probeCtx.Done():
		return false
	case f := <-ch:
		return f.kind == frameEvent || f.kind == frameEOSE
	}
}
