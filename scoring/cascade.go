package scoring

import (
	"slices"

	"github.com/mww/challenge_board/model"
)

// Recalculate re-prices every unresolved match that could have depended on the
// rejected match, which is every match created at or after it. Matches are
// processed in (Created, ID) order and each one is priced against the still
// unresolved matches that come strictly before it, so running it again with
// the same input produces the same deltas. Matches before the rejected one are
// never touched.
//
// The rejected match must already be invalidated. The recalculated matches are
// returned in the order they were processed.
func Recalculate(sys System, startingRating int, rejected *model.Match, unresolved []*model.Match) []*model.Match {
	ordered := slices.Clone(unresolved)
	slices.SortFunc(ordered, model.CompareCreated)

	touched := make([]*model.Match, 0, len(ordered))
	for i, m := range ordered {
		if m.ID == rejected.ID || !m.IsUnresolved() || m.Created.Before(rejected.Created) {
			continue
		}

		prior := make([]*model.Match, 0, i)
		for _, p := range ordered[:i] {
			if p.ID != rejected.ID && p.IsUnresolved() {
				prior = append(prior, p)
			}
		}

		sys.Calculate(startingRating, m, prior)
		touched = append(touched, m)
	}

	return touched
}
