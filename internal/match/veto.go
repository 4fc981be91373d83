package match

import "github.com/samber/lo"

// Veto sequence templates per match format. The order is fixed: teams
// alternate through bans and picks and the leftover map is the decider.
var templates = map[Type][]VetoType{
	TypeBo1: {VetoBan, VetoBan, VetoBan, VetoBan, VetoBan, VetoBan, VetoDecider},
	TypeBo3: {VetoBan, VetoBan, VetoPick, VetoPick, VetoBan, VetoBan, VetoDecider},
	TypeBo5: {VetoPick, VetoPick, VetoPick, VetoPick, VetoDecider},
}

// Template returns the veto-type sequence for a match format. Unknown
// formats fall back to bo3, mirroring the form's fallback behavior.
func Template(t Type) []VetoType {
	tmpl, ok := templates[t]
	if !ok {
		tmpl = templates[FallbackType]
	}
	out := make([]VetoType, len(tmpl))
	copy(out, tmpl)
	return out
}

// EmptyVeto returns an unfilled slot of the given type.
func EmptyVeto(vt VetoType) Veto {
	return Veto{Side: SideNone, Type: vt}
}

// DefaultVetos builds the empty veto sequence for a match format.
func DefaultVetos(t Type) []Veto {
	return lo.Map(Template(t), func(vt VetoType, _ int) Veto {
		return EmptyVeto(vt)
	})
}

// MergeTemplate re-derives a veto sequence after a match type change.
// Already-entered slots are kept index-aligned with their type
// overwritten; a shrinking template truncates, a growing one appends
// empty slots.
func MergeTemplate(prev []Veto, t Type) []Veto {
	return lo.Map(Template(t), func(vt VetoType, i int) Veto {
		if i < len(prev) {
			v := prev[i]
			v.Type = vt
			return v
		}
		return EmptyVeto(vt)
	})
}

// AutoAssign distributes two teams across a template's non-decider
// slots, alternating from slot 0. startLeft selects which team drafts
// first; the engine is stateless, so callers flip startLeft between
// invocations to rotate who opens the veto. Decider slots get no team.
func AutoAssign(leftID, rightID string, template []VetoType, startLeft bool) []string {
	first, second := leftID, rightID
	if !startLeft {
		first, second = rightID, leftID
	}
	assigned := make([]string, len(template))
	for i, vt := range template {
		if vt == VetoDecider {
			continue
		}
		if i%2 == 0 {
			assigned[i] = first
		} else {
			assigned[i] = second
		}
	}
	return assigned
}

// CanReverseSides reports whether the sides on the live map may be
// swapped: the observed map name must appear in the veto sequence.
// Callers pass the map name from the latest telemetry snapshot; an
// empty name means no snapshot and reversal is never legal.
func CanReverseSides(vetos []Veto, liveMap string) bool {
	if liveMap == "" {
		return false
	}
	return lo.SomeBy(vetos, func(v Veto) bool {
		return v.MapName == liveMap
	})
}

// SeriesWins folds concluded vetos into per-side map wins. hasResults
// is false when no veto has finished (or a side is missing), letting
// callers keep manually entered win counts untouched.
func SeriesWins(vetos []Veto, leftID, rightID *string) (left, right int, hasResults bool) {
	if leftID == nil || rightID == nil {
		return 0, 0, false
	}
	for _, v := range vetos {
		if !v.MapEnd || v.Winner == "" {
			continue
		}
		switch v.Winner {
		case *leftID:
			left++
		case *rightID:
			right++
		}
		hasResults = true
	}
	return left, right, hasResults
}
