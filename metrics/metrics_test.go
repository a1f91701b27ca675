package metrics

import "testing"

func TestCountersAreRegistered(t *testing.T) {
	before := MsgPingIn.Count()
	MsgPingIn.Mark(1)
	if got := MsgPingIn.Count(); got != before+1 {
		t.Fatalf("MsgPingIn.Count() = %d, want %d", got, before+1)
	}

	found := false
	Registry().Each(func(name string, _ interface{}) {
		if name == "bucket/insert" {
			found = true
		}
	})
	if !found {
		t.Fatal("bucket/insert meter not present in registry")
	}
}
