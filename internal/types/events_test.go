package types

import "testing"

func TestEventKindString(t *testing.T) {
	cases := []struct {
		in   EventKind
		want string
	}{
		{EventUnknown, "Unknown"},
		{EventMapStart, "MapStart"},
		{EventMapEnd, "MapEnd"},
		{EventBagInit, "BagInit"},
		{EventBagMod, "BagMod"},
		{EventPriceCheck, "PriceCheck"},
		{EventLogin, "Login"},
		{EventKind(999), "Unknown"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Fatalf("%v.String() = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestBagEventKey(t *testing.T) {
	b := BagEvent{PageID: 102, SlotID: 7, ConfigBaseID: 5210, Num: 3}
	want := SlotKey{PageID: 102, SlotID: 7, ConfigBaseID: 5210}
	if got := b.Key(); got != want {
		t.Fatalf("Key() = %+v; want %+v", got, want)
	}
}
