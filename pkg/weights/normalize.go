package weights

import "math"

// Weight bounds applied to learned and adjusted profiles.
const (
	Total     = 100.0
	MinWeight = 1.0
	MaxWeight = 50.0
)

// Normalize scales p so its known components sum to exactly 100.
// Unknown components are dropped and missing ones count as 0.
// A profile with no positive weight normalizes to DefaultProfile.
func Normalize(p Profile) Profile {
	out := make(Profile, len(Components))
	var sum float64
	for _, c := range Components {
		w := p[c]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		out[c] = w
		sum += w
	}
	if sum <= 0 {
		return DefaultProfile()
	}
	for _, c := range Components {
		out[c] = out[c] * Total / sum
	}
	fixResidual(out, Components, Components, Total)
	return out
}

// Rebalance normalizes p and then forces every weight into [lo,hi] while
// keeping the total at 100.
func Rebalance(p Profile, lo, hi float64) Profile {
	out := Normalize(p)
	distribute(out, Components, Total, lo, hi)
	return out
}

// Adjust returns a copy of p with component raised by boost (capped at 50)
// and every other weight shrunk proportionally, never below 1, so the total
// stays 100. p itself is not modified.
func Adjust(p Profile, component Component, boost float64) Profile {
	out := Normalize(p)
	if !component.Valid() || boost == 0 || math.IsNaN(boost) {
		return out
	}

	target := math.Max(MinWeight, math.Min(MaxWeight, out[component]+boost))
	out[component] = target

	others := make([]Component, 0, len(Components)-1)
	for _, c := range Components {
		if c != component {
			others = append(others, c)
		}
	}
	distribute(out, others, Total-target, MinWeight, Total)
	return out
}

// distribute rescales p[members] to sum to total with each weight in
// [lo,hi]. Weights keep their proportions except where a bound bites;
// when every positive weight is capped the excess is spread evenly over
// the members still below hi.
func distribute(p Profile, members []Component, total, lo, hi float64) {
	if len(members) == 0 {
		return
	}

	base := make(map[Component]float64, len(members))
	for _, c := range members {
		base[c] = math.Max(0, p[c])
	}
	at := func(s float64) float64 {
		var sum float64
		for _, c := range members {
			sum += math.Max(lo, math.Min(hi, s*base[c]))
		}
		return sum
	}
	apply := func(s float64) {
		for _, c := range members {
			p[c] = math.Max(lo, math.Min(hi, s*base[c]))
		}
	}

	upper := 1.0
	for at(upper) < total && upper < 1e12 {
		upper *= 2
	}

	if at(upper) < total {
		apply(upper)
		spread(p, members, total, hi)
	} else {
		lower := 0.0
		for i := 0; i < 200; i++ {
			mid := (lower + upper) / 2
			if at(mid) < total {
				lower = mid
			} else {
				upper = mid
			}
		}
		apply(upper)
	}

	adjustable := make([]Component, 0, len(members))
	for _, c := range members {
		if p[c] > lo && p[c] < hi {
			adjustable = append(adjustable, c)
		}
	}
	fixResidual(p, members, adjustable, total)
}

// spread raises members below hi in equal steps until they sum to total.
func spread(p Profile, members []Component, total, hi float64) {
	for i := 0; i < len(members); i++ {
		var sum float64
		var room []Component
		for _, c := range members {
			sum += p[c]
			if p[c] < hi {
				room = append(room, c)
			}
		}
		extra := total - sum
		if extra <= 1e-12 || len(room) == 0 {
			return
		}
		step := extra / float64(len(room))
		for _, c := range room {
			p[c] = math.Min(hi, p[c]+step)
		}
	}
}

// fixResidual moves floating-point drift onto the largest adjustable member.
func fixResidual(p Profile, members, adjustable []Component, total float64) {
	if len(adjustable) == 0 {
		return
	}
	var sum float64
	for _, c := range members {
		sum += p[c]
	}
	largest := adjustable[0]
	for _, c := range adjustable {
		if p[c] > p[largest] {
			largest = c
		}
	}
	if drift := total - sum; math.Abs(drift) < 1e-6 {
		p[largest] += drift
	}
}
