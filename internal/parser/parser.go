package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"TorchLedger/internal/types"
)

// PriceSampleSize caps how many market listings are averaged into one price.
const PriceSampleSize = 30

// maxPendingRequests bounds the SynId -> item map when responses never arrive.
const maxPendingRequests = 256

// Parser compiles and applies regex patterns to log lines to emit normalized Events.
//
// Parse is stateless and handles single-line shapes. Feed additionally assembles
// market search results, which span several lines, and must be called for every line
// in order.
type Parser struct {
	bagInit    *regexp.Regexp
	bagMod     *regexp.Regexp
	transition *regexp.Regexp // captures NextSceneName path
	lastScene  *regexp.Regexp
	tsPrefix   *regexp.Regexp // captures timestamp components

	searchSend *regexp.Regexp
	searchRecv *regexp.Regexp
	refer      *regexp.Regexp
	listing    *regexp.Regexp

	pendingSyn int
	hasPending bool
	requests   map[int]int // SynId -> ConfigBaseId
	block      *priceBlock
}

type priceBlock struct {
	synID  int
	itemID int
	at     time.Time
	line   string
	values []float64
}

func New() *Parser {
	// Flexible prefix: allow optional [..][..] at start followed by GameLog: Display: [Game]
	prefix := `(?:\[.*?\]){1,3}\s*GameLog: Display: \[Game\]\s*`

	return &Parser{
		bagInit: regexp.MustCompile(prefix + `BagMgr@:InitBagData\s+PageId = (\d+)\s+SlotId = (\d+)\s+ConfigBaseId = (\d+)\s+Num = (\d+)`),
		bagMod:  regexp.MustCompile(prefix + `BagMgr@:Modfy BagItem\s+PageId = (\d+)\s+SlotId = (\d+)\s+ConfigBaseId = (\d+)\s+Num = (\d+)`),
		// Transition with NextSceneName = World'/Game/Art/Maps...'
		transition: regexp.MustCompile(`PageApplyBase@ _UpdateGameEnd: .*?NextSceneName = World'(/Game/Art/Maps[^']*)'`),
		lastScene:  regexp.MustCompile(`LastSceneName = (?:World')?([^\s']+)`),
		// Timestamp prefix: [YYYY.MM.DD-HH.MM.SS:ms][...]
		tsPrefix: regexp.MustCompile(`^\[(\d{4})\.(\d{2})\.(\d{2})-(\d{2})\.(\d{2})\.(\d{2}):(\d{3})\]`),

		searchSend: regexp.MustCompile(`XchgSearchPrice----SynId = (\d+)`),
		searchRecv: regexp.MustCompile(`----Socket RecvMessage STT----XchgSearchPrice----SynId = (\d+)`),
		refer:      regexp.MustCompile(`\+refer \[(\d+)\]`),
		listing:    regexp.MustCompile(`\+\d+\s+\[([\d.]+)\]`),
		requests:   make(map[int]int),
	}
}

// RefugePath is the scene the player returns to between maps.
const RefugePath = types.RefugeScene

// Parse attempts to parse a single line into an Event. Returns nil if unrecognized.
func (p *Parser) Parse(line string) *types.Event {
	line = strings.TrimRight(line, "\r\n")
	ts := p.parseTimestamp(line)
	if m := p.bagInit.FindStringSubmatch(line); m != nil {
		return &types.Event{Kind: types.EventBagInit, Time: ts, Line: line, Bag: parseBag(m)}
	}
	if m := p.bagMod.FindStringSubmatch(line); m != nil {
		return &types.Event{Kind: types.EventBagMod, Time: ts, Line: line, Bag: parseBag(m)}
	}
	if m := p.transition.FindStringSubmatch(line); m != nil {
		path := m[1]
		if strings.HasPrefix(path, "/Game/Art/Maps/") {
			var from string
			if lm := p.lastScene.FindStringSubmatch(line); lm != nil {
				from = lm[1]
			}
			if path == RefugePath {
				return &types.Event{Kind: types.EventMapEnd, Time: ts, Line: line, FromScene: from}
			}
			return &types.Event{Kind: types.EventMapStart, Time: ts, Line: line, FromScene: from}
		}
	}
	if strings.Contains(line, "PlayerInitPkgMgr") || strings.Contains(line, "Login2Client") {
		return &types.Event{Kind: types.EventLogin, Time: ts, Line: line}
	}
	return nil
}

// Feed consumes the next log line and returns every event it completes.
// A market result block is closed by the next socket message line or by Flush.
func (p *Parser) Feed(line string) []*types.Event {
	line = strings.TrimRight(line, "\r\n")
	var out []*types.Event

	if p.block != nil {
		if !strings.Contains(line, "----Socket") {
			p.block.collect(p.listing, line)
			if ev := p.Parse(line); ev != nil {
				out = append(out, ev)
			}
			return out
		}
		out = append(out, p.closeBlock())
	}

	if m := p.searchRecv.FindStringSubmatchIndex(line); m != nil {
		syn, _ := strconv.Atoi(line[m[2]:m[3]])
		item, ok := p.requests[syn]
		delete(p.requests, syn)
		if ok && item != types.BaseCurrencyID {
			p.block = &priceBlock{synID: syn, itemID: item, at: p.parseTimestamp(line), line: line}
			p.block.collect(p.listing, line[m[1]:])
		}
		return out
	}
	if m := p.searchSend.FindStringSubmatch(line); m != nil {
		p.pendingSyn, _ = strconv.Atoi(m[1])
		p.hasPending = true
	}
	if p.hasPending {
		if m := p.refer.FindStringSubmatch(line); m != nil {
			item, _ := strconv.Atoi(m[1])
			if len(p.requests) >= maxPendingRequests {
				p.requests = make(map[int]int)
			}
			p.requests[p.pendingSyn] = item
			p.hasPending = false
			return out
		}
	}
	if ev := p.Parse(line); ev != nil {
		out = append(out, ev)
	}
	return out
}

// Flush closes an open market result block, if any.
func (p *Parser) Flush() *types.Event {
	if p.block == nil {
		return nil
	}
	return p.closeBlock()
}

func (p *Parser) closeBlock() *types.Event {
	b := p.block
	p.block = nil
	sample := &types.PriceSample{ItemID: b.itemID, SynID: b.synID, Price: -1}
	if n := len(b.values); n > 0 {
		if n > PriceSampleSize {
			n = PriceSampleSize
		}
		var sum float64
		for _, v := range b.values[:n] {
			sum += v
		}
		sample.Price = math.Round(sum/float64(n)*1e4) / 1e4
		sample.Samples = n
	}
	return &types.Event{Kind: types.EventPriceCheck, Time: b.at, Line: b.line, Price: sample}
}

func (b *priceBlock) collect(re *regexp.Regexp, s string) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			b.values = append(b.values, v)
		}
	}
}

func (p *Parser) parseTimestamp(line string) time.Time {
	m := p.tsPrefix.FindStringSubmatch(line)
	if m == nil {
		return time.Now()
	}
	y := atoi(m[1])
	mon := atoi(m[2])
	d := atoi(m[3])
	h := atoi(m[4])
	min := atoi(m[5])
	s := atoi(m[6])
	ms := atoi(m[7])
	return time.Date(y, time.Month(mon), d, h, min, s, ms*1e6, time.Local)
}

func parseBag(matches []string) *types.BagEvent {
	// matches[0] is the full match
	return &types.BagEvent{
		PageID:       atoi(matches[1]),
		SlotID:       atoi(matches[2]),
		ConfigBaseID: atoi(matches[3]),
		Num:          atoi(matches[4]),
	}
}

// atoi converts a regex-captured digit run; the patterns guarantee digits only.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
