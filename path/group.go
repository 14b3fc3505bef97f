package path

// Policy is the return policy of spec.md §4.3 / §6.
type Policy int

const (
	EachOkAndError Policy = iota
	FirstErrorOrFirstOk
	FirstErrorOrLastOk
)

func PolicyFromString(s string) (Policy, bool) {
	switch s {
	case "EachOkAndError":
		return EachOkAndError, true
	case "FirstErrorOrFirstOk":
		return FirstErrorOrFirstOk, true
	case "FirstErrorOrLastOk":
		return FirstErrorOrLastOk, true
	default:
		return EachOkAndError, false
	}
}

func (p Policy) String() string {
	switch p {
	case FirstErrorOrFirstOk:
		return "FirstErrorOrFirstOk"
	case FirstErrorOrLastOk:
		return "FirstErrorOrLastOk"
	default:
		return "EachOkAndError"
	}
}

// Group reduces N sibling path results into a single returned result per
// its Policy (spec.md §4.3, component C3).
type Group struct {
	Policy  Policy
	Members []*Path
}

// NewGroup creates a path group over members and wires the mutual
// back-reference invariant: last in members gets LastInGroup=true, making
// ordering deterministic (spec.md §4.3 "Creation").
func NewGroup(policy Policy, members []*Path) *Group {
	g := &Group{Policy: policy, Members: members}
	for i, m := range members {
		m.Group = g
		m.LastInGroup = i == len(members)-1
	}
	return g
}

// resolve implements path_group_resolve(path, type) from spec.md §4.3.
// Returns the path whose cached result should now be forwarded, or nil if
// the group is not yet ready to emit.
func (g *Group) resolve(p *Path) *Path {
	switch g.Policy {
	case EachOkAndError:
		if p.CachedCmdResult != nil {
			return p
		}
		return nil

	case FirstErrorOrFirstOk:
		var earliest *Path
		for _, m := range g.Members {
			if m.CachedCmdResult == nil {
				continue
			}
			if earliest == nil || m.arrivedAtUs < earliest.arrivedAtUs {
				earliest = m
			}
		}
		return earliest

	case FirstErrorOrLastOk:
		var latestOk *Path
		allOk := true
		for _, m := range g.Members {
			if m.CachedCmdResult == nil {
				allOk = false
				continue
			}
			if m.CachedCmdResult.StatusCode != 0 { // Error
				return m
			}
			if latestOk == nil || m.arrivedAtUs > latestOk.arrivedAtUs {
				latestOk = m
			}
		}
		if allOk {
			return latestOk
		}
		return nil

	default:
		return nil
	}
}

// removeMember detaches m from the group (used by the EachOkAndError
// per-member removal path in Table.DetermineActualCmdResult) and reports
// whether it was the last member (making this emission the completed one).
func (g *Group) removeMember(m *Path) (wasLast bool) {
	for i, cand := range g.Members {
		if cand == m {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	return len(g.Members) == 0
}
