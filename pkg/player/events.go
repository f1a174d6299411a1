package player

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/errors"
)

// handleEvent re-homes one engine event. It runs on an engine thread.
func (p *Player) handleEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventStatistics:
		p.bg.Post(func() { p.reportStatistics(ev.Payload) })

	case engine.EventStart:
		p.ui.Post(p.firstFrameShown)

	case engine.EventThreadStart, engine.EventThreadEnd:
		p.recordWorker(ev)

	case engine.EventAnimationEnd:
		p.ui.Post(func() {
			cb, ok := p.tracker.Complete(ev.Payload)
			if !ok {
				p.logger.Debug("stale completion dropped", slog.String("token", ev.Payload))
				return
			}
			if cb != nil {
				errors.Guard("player.PlayCallback", func() { cb(nil) })
			}
		})

	case engine.EventInteractBegin, engine.EventInteractEnd:
		phrase := PhraseBegin
		if ev.Kind == engine.EventInteractEnd {
			phrase = PhraseEnd
		}
		p.ui.Post(func() {
			p.mu.Lock()
			l := p.listener
			p.mu.Unlock()
			if l != nil {
				errors.Guard("player.EventListener", func() { l.OnMessageItem(ev.Payload, phrase) })
			}
		})

	case engine.EventSurfaceInitError, engine.EventRuntimeError:
		p.ui.Post(func() {
			if cb := p.tracker.Take(); cb != nil {
				errors.Guard("player.PlayCallback", func() { cb(&RuntimeError{Message: ev.Payload}) })
			}
			p.applyDowngrade(ev.Kind.String())
		})
		p.bg.Post(func() { p.monitor.Error(p.sourceID, "runtime_error", ev.Payload) })

	default:
		p.logger.Debug("unhandled event", slog.String("event", ev.String()))
	}
}

// reportStatistics parses "<compressed>_<glesVersion>".
func (p *Player) reportStatistics(payload string) {
	parts := strings.Split(payload, "_")
	if payload == "" || len(parts) < 2 {
		p.logger.Warn("malformed statistics", slog.String("payload", payload))
		return
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		errors.Report(&errors.Error{
			Op:     "player.statistics",
			Kind:   errors.KindParsing,
			Err:    &errors.ParseError{Field: "statistics", DataType: "gles version", Got: parts[1]},
			Source: p.sourceID,
		})
		return
	}
	p.monitor.Statistics(p.sourceID, parts[0] == "true", parts[1])
}

func (p *Player) firstFrameShown() {
	if !p.IsDowngraded() {
		p.showPlaceholder(false)
	}
	p.mu.Lock()
	fn := p.firstFrame
	p.firstFrame = nil
	p.mu.Unlock()
	if fn != nil {
		errors.Guard("player.FirstFrame", fn)
	}
}

func (p *Player) recordWorker(ev engine.Event) {
	if p.ledger == nil {
		return
	}
	var err error
	if ev.Kind == engine.EventThreadStart {
		err = p.ledger.RecordBegin(context.Background(), p.sourceID, ev.Payload)
	} else {
		err = p.ledger.RecordFinish(context.Background(), p.sourceID, ev.Payload)
	}
	if err != nil {
		p.logger.Warn("worker bookkeeping failed", slog.String("event", ev.Kind.String()), slog.Any("error", err))
	}
}
