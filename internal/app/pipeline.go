package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"TorchLedger/internal/history"
	"TorchLedger/internal/tracker"
	"TorchLedger/internal/types"
)

// settleAfter is how long the log must stay quiet before an open bag dump or
// market result is considered complete.
const settleAfter = time.Second

func (a *App) consume(ctx context.Context, lines <-chan string) error {
	idle := time.NewTicker(settleAfter)
	defer idle.Stop()
	quiet := false
	for {
		select {
		case <-ctx.Done():
			a.flushMods()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				a.settle()
				return nil
			}
			a.processLine(line)
			quiet = false
		case <-idle.C:
			if quiet {
				a.settle()
			}
			quiet = true
		}
	}
}

// Ingest processes every line of r synchronously, then settles open blocks.
// Durations are measured against event time, as for a replayed log.
func (a *App) Ingest(ctx context.Context, r io.Reader) error {
	a.mu.Lock()
	a.replay = true
	a.mu.Unlock()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.processLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	a.settle()
	return nil
}

func (a *App) processLine(line string) {
	for _, ev := range a.p.Feed(line) {
		a.handle(ev)
	}
}

func (a *App) settle() {
	if ev := a.p.Flush(); ev != nil {
		a.handle(ev)
	}
	a.flushMods()
	a.endBurst()
}

// flushMods applies the buffered BagMod batch.
func (a *App) flushMods() {
	if len(a.mods) == 0 {
		return
	}
	batch, at := a.mods, a.modsAt
	a.mods = nil
	a.writeJournal(a.trk.RecordAt(at, a.inv.ApplyMods(batch...)))
}

func (a *App) endBurst() {
	if items, ok := a.inv.EndBurst(); ok {
		a.log.Info("inventory initialized", zap.Int("items", items))
	}
}

func (a *App) handle(ev *types.Event) {
	if ev.Kind != types.EventBagMod || !ev.Time.Equal(a.modsAt) {
		a.flushMods()
	}
	if ev.Kind != types.EventBagInit {
		a.endBurst()
	}
	hop := a.trk.IsHop(ev)
	closed := a.trk.OnEvent(ev)

	switch ev.Kind {
	case types.EventLogin:
		a.inv.Reset()
		a.log.Info("login detected, bag state cleared")
	case types.EventMapStart:
		if !hop {
			a.inv.ResetBaseline()
		}
	case types.EventBagInit:
		if ev.Bag != nil {
			a.inv.ApplyInit(*ev.Bag)
		}
	case types.EventBagMod:
		if ev.Bag != nil {
			if len(a.mods) == 0 {
				a.modsAt = a.eventTime(ev)
			}
			a.mods = append(a.mods, *ev.Bag)
		}
	case types.EventPriceCheck:
		if ev.Price != nil {
			a.applyPrice(*ev.Price)
		}
	}
	a.persist(closed)

	a.mu.Lock()
	a.lastEventAt = ev.Time
	a.mu.Unlock()
}

// eventTime is the log timestamp of ev, or now for lines without one.
func (a *App) eventTime(ev *types.Event) time.Time {
	if ev.Time.IsZero() {
		return time.Now()
	}
	return ev.Time
}

func (a *App) applyPrice(s types.PriceSample) {
	tbl := a.Table()
	if tbl == nil || !tbl.ApplyLocal(s, time.Now()) {
		return
	}
	a.log.Info("price updated",
		zap.String("item", tbl.Name(s.ItemID)),
		zap.Float64("price", s.Price),
		zap.Int("samples", s.Samples))
	if err := tbl.Save(); err != nil {
		a.log.Warn("save item table", zap.Error(err))
	}
}

func (a *App) writeJournal(counted []tracker.Counted) {
	for _, c := range counted {
		msg := JournalLine(c)
		a.log.Info(msg)
		if a.journal != nil {
			a.journal.Info(msg)
		}
	}
}

// JournalLine formats a counted change the way the drop journal records it.
func JournalLine(c tracker.Counted) string {
	price := strconv.FormatFloat(math.Round(c.UnitPrice*1000)/1000, 'f', -1, 64)
	if c.Delta > 0 {
		return fmt.Sprintf("Drop: %s x%d (%s/each)", c.Name, c.Delta, price)
	}
	return fmt.Sprintf("Consumed: %s x%d (%s/each)", c.Name, -c.Delta, price)
}

func (a *App) persist(s *tracker.MapSession) {
	if s == nil {
		return
	}
	store := a.History()
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	id, err := store.Save(ctx, history.Run{
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Duration:  s.Duration(s.EndedAt),
		Income:    s.Income,
		Cost:      s.Cost,
		Drops:     s.Tally,
	})
	if err != nil {
		a.log.Warn("save run", zap.Error(err))
		return
	}
	a.log.Debug("run saved", zap.String("id", id))
}
