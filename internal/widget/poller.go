package widget

import (
	"context"
	"time"
)

type Ticker interface {
	C() <-chan time.Time

	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func NewTimeTicker(d time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *timeTicker) Stop() {
	t.ticker.Stop()
}

// Poller calls a poll function once per tick on its own goroutine until the
// function reports a terminal result or Stop is called. Ticks that arrive
// while a poll is running are dropped by the ticker, so polls never overlap.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func StartPoller(ticker Ticker, poll func(ctx context.Context) (terminal bool)) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				if poll(ctx) {
					return
				}
			}
		}
	}()

	return p
}

// Stop cancels any running poll and waits for the poll goroutine to exit.
// No poll is started after Stop returns. It is safe to call more than once.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

func (p *Poller) Done() <-chan struct{} {
	return p.done
}
