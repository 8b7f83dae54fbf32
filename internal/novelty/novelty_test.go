package novelty_test

import (
	"math/rand"
	"reflect"
	"slices"
	"strconv"
	"testing"

	"transientbot/internal/novelty"
)

func TestFilterScenarios(t *testing.T) {
	tests := []struct {
		name   string
		source []string
		seen   novelty.IDSet
		want   []string
	}{
		{name: "duplicates collapse and seen excluded", source: []string{"T1", "T2", "T1"}, seen: novelty.NewIDSet("T2"), want: []string{"T1"}},
		{name: "empty store returns everything", source: []string{"T3"}, seen: novelty.NewIDSet(), want: []string{"T3"}},
		{name: "empty source", source: nil, seen: novelty.NewIDSet("T1"), want: nil},
		{name: "nil store", source: []string{"b", "a", "b"}, seen: nil, want: []string{"b", "a"}},
		{name: "case sensitive", source: []string{"t1", "T1"}, seen: novelty.NewIDSet("T1"), want: []string{"t1"}},
		{name: "seen id recurring", source: []string{"X", "X", "X"}, seen: novelty.NewIDSet("X"), want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen novelty.Set
			if tc.seen != nil {
				seen = tc.seen
			}
			got := novelty.Filter(tc.source, seen)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Filter(%v) = %v, want %v", tc.source, got, tc.want)
			}
		})
	}
}

func TestFilterSecondRunAfterRecordingIsEmpty(t *testing.T) {
	source := []string{"T3"}
	store := novelty.NewIDSet()
	first := novelty.Filter(source, store)
	if !reflect.DeepEqual(first, []string{"T3"}) {
		t.Fatalf("first run = %v", first)
	}
	store = store.Union(first...)
	if second := novelty.Filter(source, store); len(second) != 0 {
		t.Fatalf("second run should be empty, got %v", second)
	}
}

func TestFilterDoesNotMutateInputs(t *testing.T) {
	source := []string{"a", "b", "a", "c"}
	snapshot := slices.Clone(source)
	seen := novelty.NewIDSet("b")
	_ = novelty.Filter(source, seen)
	if !reflect.DeepEqual(source, snapshot) {
		t.Fatalf("source mutated: %v", source)
	}
	if seen.Len() != 1 || !seen.Contains("b") {
		t.Fatalf("seen mutated: %v", seen)
	}
}

func TestFilterProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomIDs := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "T" + strconv.Itoa(rng.Intn(20))
		}
		return out
	}

	for iter := 0; iter < 200; iter++ {
		source := randomIDs(rng.Intn(30))
		seen := novelty.NewIDSet(randomIDs(rng.Intn(15))...)
		got := novelty.Filter(source, seen)

		inSource := novelty.NewIDSet(source...)
		emitted := map[string]struct{}{}
		for _, id := range got {
			if !inSource.Contains(id) {
				t.Fatalf("result %v not a subset of source %v", got, source)
			}
			if seen.Contains(id) {
				t.Fatalf("result %v intersects store", got)
			}
			if _, dup := emitted[id]; dup {
				t.Fatalf("duplicate %q in result %v", id, got)
			}
			emitted[id] = struct{}{}
		}

		// Order of first occurrence among unseen ids.
		var want []string
		firstSeen := map[string]struct{}{}
		for _, id := range source {
			if _, ok := firstSeen[id]; ok {
				continue
			}
			firstSeen[id] = struct{}{}
			if !seen.Contains(id) {
				want = append(want, id)
			}
		}
		if len(want) != len(got) || (len(want) > 0 && !reflect.DeepEqual(want, got)) {
			t.Fatalf("Filter(%v) = %v, want %v", source, got, want)
		}

		if again := novelty.Filter(source, seen.Union(got...)); len(again) != 0 {
			t.Fatalf("filter not idempotent against store growth: %v", again)
		}
		if empty := novelty.Filter(nil, seen); len(empty) != 0 {
			t.Fatalf("empty source should yield empty result, got %v", empty)
		}
	}
}
