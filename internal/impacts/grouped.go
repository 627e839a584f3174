package impacts

import (
	"sort"

	"github.com/pacificclimate/impacts/internal/domain"
)

// GroupedActiveItems groups the active, non-internal rules by the group
// axis and lists the distinct item-axis values of each group.
//
// Groups are sorted by key and items within a group are sorted, both
// byte-wise. Groups without any active rule are omitted.
func GroupedActiveItems(rules []domain.RuleRecord, act domain.Activation, group, item Axis) []domain.Group {
	sets := make(map[string]map[string]struct{})
	for _, r := range rules {
		if r.IsInternal() || !act.Active(r.ID) {
			continue
		}
		key := group.Value(r)
		set, ok := sets[key]
		if !ok {
			set = make(map[string]struct{})
			sets[key] = set
		}
		set[item.Value(r)] = struct{}{}
	}

	out := make([]domain.Group, 0, len(sets))
	for key, set := range sets {
		out = append(out, domain.Group{Key: key, Items: sortedKeys(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
