package diff

import "sort"

// StateChange is one key-level difference between two state maps.
type StateChange struct {
	Kind     ChangeKind
	Key      string
	OldValue interface{}
	NewValue interface{}
}

// State compares two {key: value} maps and emits Added, Deleted (key
// removed), and Modified changes for every differing key, sorted by key
// (§4.9).
func State(old, new map[string]interface{}) []StateChange {
	var changes []StateChange

	for k, oldVal := range old {
		newVal, present := new[k]
		if !present {
			changes = append(changes, StateChange{Kind: ChangeDeleted, Key: k, OldValue: oldVal})
			continue
		}
		if !equalValue(oldVal, newVal) {
			changes = append(changes, StateChange{Kind: ChangeModified, Key: k, OldValue: oldVal, NewValue: newVal})
		}
	}
	for k, newVal := range new {
		if _, present := old[k]; !present {
			changes = append(changes, StateChange{Kind: ChangeAdded, Key: k, NewValue: newVal})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

// equalValue compares two decoded-JSON-shaped values for equality.
// Scalars compare directly; maps and slices compare deeply via a
// recursive walk since json.RawMessage round-trips to interface{} and
// == would panic on unhashable types.
func equalValue(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !equalValue(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
