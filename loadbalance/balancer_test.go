package loadbalance

import (
	"fmt"
	"testing"

	"dhcpproxy/registry"
)

var testInstances = []registry.ProxyInstance{
	{Network: "tcp", Addr: ":8001", Weight: 10, Version: "1.0"},
	{Network: "tcp", Addr: ":8002", Weight: 5, Version: "1.0"},
	{Network: "tcp", Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances
	seen := map[string]bool{}
	first := ""
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = inst.Addr
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expect 3 distinct instances, got %d", len(seen))
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != first {
		t.Fatalf("expect wrap around to %s, got %s", first, inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick(nil)
	if err != ErrNoInstances {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ProxyInstance{{Addr: "a"}, {Addr: "b"}}

	for i := 0; i < 100; i++ {
		if _, err := b.Pick(instances); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer("")
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	// Same key should always map to the same instance
	inst1, _ := b.PickKey("dhcp01.corp")
	inst2, _ := b.PickKey("dhcp01.corp")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.PickKey(fmt.Sprintf("dhcp-%d", i))
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashBalancerPick(t *testing.T) {
	b := NewConsistentHashBalancer("dhcp01.corp")

	inst1, err := b.Pick(testInstances)
	if err != nil {
		t.Fatal(err)
	}

	// Order of the discovered list does not matter
	reversed := []registry.ProxyInstance{testInstances[2], testInstances[1], testInstances[0]}
	inst2, _ := b.Pick(reversed)
	if inst1.Addr != inst2.Addr {
		t.Fatalf("pick changed with list order: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// Losing an instance only moves keys that lived on it
	var remaining []registry.ProxyInstance
	for _, inst := range testInstances {
		if inst.Addr != inst1.Addr {
			remaining = append(remaining, inst)
		}
	}
	inst3, _ := b.Pick(remaining)
	if inst3.Addr == inst1.Addr {
		t.Fatalf("picked removed instance %s", inst3.Addr)
	}

	if _, err := b.Pick(nil); err != ErrNoInstances {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "round_robin", "weighted_random", "consistent_hash"} {
		if _, err := New(name, "k"); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
	if _, err := New("random", ""); err == nil {
		t.Fatal("expect error for unknown balancer")
	}
}
