package commands

import (
	"fmt"
	"io"
	"sync"

	"git.home.luguber.info/inful/preleganto/internal/events"
)

const logo = `                  _                        _
 _ __  _ __ ___  | | ___  __ _  __ _ _ __ | |_ ___
| '_ \| '__/ _ \ | |/ _ \/ _' |/ _' | '_ \| __/ _ \
| |_) | | |  __/ | |  __/ (_| | (_| | | | | || (_) |
| .__/|_|  \___| |_|\___|\__, |\__,_|_| |_|\__\___/
|_|                      |___/
`

// printer writes the friendly progress messages users see on stdout. Logs go
// to stderr through slog.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) logo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.out, logo)
	_, _ = fmt.Fprintln(p.out)
}

func (p *printer) say(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) newline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out)
}

// followWatch narrates watch events for input until the returned stop
// function is called. Stop after the watcher has returned so that every
// published event is printed.
func (p *printer) followWatch(bus *events.Bus, input string) (stop func()) {
	ch, unsubscribe := events.Subscribe[events.Event](bus, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for evt := range ch {
			p.narrate(evt, input)
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func (p *printer) narrate(evt events.Event, input string) {
	switch e := evt.(type) {
	case events.BuildStarted:
		p.say("(%s) '%s' was changed so I will try to build it again", e.TriggeredAt.Format("15:04:05"), input)
	case events.BuildCompleted:
		p.say("And I was successful")
	case events.BuildFailed:
		p.say("But I could not build it: %v", e.Err)
	case events.WatchTerminated:
		p.say("'%s' was renamed or deleted so I will stop watching it", input)
	}
}
