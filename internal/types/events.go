package types

import "time"

// EventKind represents the type of a parsed log event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventMapStart
	EventMapEnd
	EventBagInit
	EventBagMod
	EventPriceCheck
	EventLogin
)

func (k EventKind) String() string {
	switch k {
	case EventMapStart:
		return "MapStart"
	case EventMapEnd:
		return "MapEnd"
	case EventBagInit:
		return "BagInit"
	case EventBagMod:
		return "BagMod"
	case EventPriceCheck:
		return "PriceCheck"
	case EventLogin:
		return "Login"
	default:
		return "Unknown"
	}
}

// BaseCurrencyID is the ConfigBaseId of Flame Elementium. Prices are denominated in it,
// so it is never price-checked or taxed.
const BaseCurrencyID = 100300

// RefugeScene is the hub scene the player returns to between maps.
const RefugeScene = "/Game/Art/Maps/01SD/XZ_YuJinZhiXiBiNanSuo200/XZ_YuJinZhiXiBiNanSuo200.XZ_YuJinZhiXiBiNanSuo200"

// UIScenePrefix marks menu scenes such as the login screen.
const UIScenePrefix = "/Game/Art/Maps/UI/"

// BagEvent captures inventory slot values from the log.
type BagEvent struct {
	PageID       int
	SlotID       int
	ConfigBaseID int
	Num          int
}

// Key returns the slot identity of the bag entry.
func (b BagEvent) Key() SlotKey {
	return SlotKey{PageID: b.PageID, SlotID: b.SlotID, ConfigBaseID: b.ConfigBaseID}
}

// SlotKey identifies one inventory slot holding one item type.
type SlotKey struct {
	PageID       int
	SlotID       int
	ConfigBaseID int
}

// PriceSample is the result of an in-game market search.
// Samples is zero when the market returned no listings; Price is then -1.
type PriceSample struct {
	ItemID  int
	SynID   int
	Price   float64
	Samples int
}

// Event is a normalized parsed log event.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Line  string // raw log line
	Bag   *BagEvent
	Price *PriceSample
	// FromScene is the scene left on a map transition.
	FromScene string
}
