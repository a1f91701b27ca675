package distip

import (
	"fmt"
	"net"
	"testing"
)

func parseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("invalid " + s)
	}
	return ip
}

func TestDistinctNetSet(t *testing.T) {
	ops := []struct {
		add, remove string
		fails       bool
	}{
		{add: "127.0.0.1"},
		{add: "127.0.0.2"},
		{add: "127.0.0.3", fails: true},
		{add: "127.32.0.1"},
		{add: "127.32.0.2"},
		{add: "127.32.0.3", fails: true},
		{add: "127.33.0.1", fails: true},
		{add: "127.34.0.1"},
		{add: "127.34.0.2"},
		{add: "127.34.0.3", fails: true},
		// Make room for an address, then add again.
		{remove: "127.0.0.1"},
		{add: "127.0.0.3"},
		{add: "127.0.0.3", fails: true},
	}

	set := DistinctNetSet{Subnet: 15, Limit: 2}
	for _, op := range ops {
		var desc string
		if op.add != "" {
			desc = fmt.Sprintf("Add(%s)", op.add)
			if ok := set.Add(parseIP(op.add)); ok != !op.fails {
				t.Errorf("%s == %t, want %t", desc, ok, !op.fails)
			}
		} else {
			desc = fmt.Sprintf("Remove(%s)", op.remove)
			set.Remove(parseIP(op.remove))
		}
		t.Logf("%s: %v", desc, set)
	}
}

func TestDistinctNetSetIPv6(t *testing.T) {
	set := DistinctNetSet{Subnet: 64, Limit: 1}
	if !set.Add(parseIP("2001:db8::1")) {
		t.Fatal("first IPv6 /64 member should be admitted")
	}
	if set.Add(parseIP("2001:db8::2")) {
		t.Fatal("second address in the same /64 should exceed the limit")
	}
	if !set.Contains(parseIP("2001:db8::1")) {
		t.Fatal("Contains should report the admitted address")
	}
	if set.Len() != 1 {
		t.Fatalf("Len() == %d, want 1", set.Len())
	}
	set.Remove(parseIP("2001:db8::1"))
	if set.Len() != 0 {
		t.Fatalf("Len() == %d after Remove, want 0", set.Len())
	}
}
