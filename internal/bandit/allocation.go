package bandit

import (
	"fmt"
	"sort"
)

// Allocation maps arm names to the share of future trials they should get.
type Allocation map[string]float64

// Sum returns the total probability mass.
func (a Allocation) Sum() float64 {
	sum := 0.0
	for _, name := range a.sortedNames() {
		sum += a[name]
	}
	return sum
}

// Winners returns the sorted names of arms with a non-zero share.
func (a Allocation) Winners() []string {
	out := make([]string, 0, len(a))
	for _, name := range a.sortedNames() {
		if a[name] > 0 {
			out = append(out, name)
		}
	}
	return out
}

func (a Allocation) sortedNames() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EqualAllocation splits the allocation evenly across winners and gives
// every other arm of hist zero. It panics when winners is empty or names
// an arm that hist does not hold.
func EqualAllocation(hist *HistoricalInfo, winners []string) Allocation {
	if len(winners) == 0 {
		panic("bandit: empty winning arm set")
	}
	uniq := make(map[string]struct{}, len(winners))
	for _, name := range winners {
		if _, ok := hist.Arm(name); !ok {
			panic(fmt.Sprintf("bandit: winning arm %q not in historical info", name))
		}
		uniq[name] = struct{}{}
	}
	share := 1.0 / float64(len(uniq))
	out := make(Allocation, hist.Len())
	for _, name := range hist.Names() {
		if _, ok := uniq[name]; ok {
			out[name] = share
			continue
		}
		out[name] = 0
	}
	return out
}
