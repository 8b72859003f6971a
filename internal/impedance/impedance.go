// Package impedance derives three-way exposure imbalance indices from back-side liquidity.
//
// For each outcome j the backer liability L_j = size * (odds - 1) is summed over
// the back levels considered, and the index is L_j minus the liability resting
// on the other two outcomes. The three values sum to minus the total liability.
package impedance

import (
	"math"

	"github.com/rewired-gh/bookrisk/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultDepthLimit is the number of back levels used by DepthImbalance.
const DefaultDepthLimit = 3

// Source labels where an impedance triplet came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceSizeL1  Source = "size_l1"
	SourceNone    Source = "none"
)

// L1Input is the best-level back size and price for one outcome.
type L1Input struct {
	BackSizeL1 *float64
	BackOdds   *float64
}

// Inputs holds the L1 inputs for home, away, and draw.
type Inputs struct {
	Home L1Input
	Away L1Input
	Draw L1Input
}

func (in Inputs) get(o models.Outcome) L1Input {
	switch o {
	case models.Home:
		return in.Home
	case models.Away:
		return in.Away
	default:
		return in.Draw
	}
}

// effective maps missing or invalid inputs to zero so they contribute no liability.
func effective(v *float64, floor float64) decimal.Decimal {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= floor {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func liability(size, odds *float64) decimal.Decimal {
	o := effective(odds, 1)
	s := effective(size, 0)
	if o.IsZero() || s.IsZero() {
		return decimal.Zero
	}
	return s.Mul(o.Sub(decimal.NewFromInt(1)))
}

func imbalance(l [3]decimal.Decimal) models.Triplet {
	total := l[0].Add(l[1]).Add(l[2])
	var out [3]*float64
	for i := range l {
		opposing := total.Sub(l[i])
		v := l[i].Sub(opposing).InexactFloat64()
		out[i] = &v
	}
	return models.Triplet{Home: out[0], Away: out[1], Draw: out[2]}
}

// SizeImpedanceL1 is the best-level stand-in for the backend Impedance index.
// It returns an all-nil triplet when no outcome has an L1 back size, since a
// zero index would read as a real balanced book.
func SizeImpedanceL1(in Inputs) models.Triplet {
	if in.Home.BackSizeL1 == nil && in.Away.BackSizeL1 == nil && in.Draw.BackSizeL1 == nil {
		return models.Triplet{}
	}
	var l [3]decimal.Decimal
	for i, o := range models.Outcomes {
		x := in.get(o)
		l[i] = liability(x.BackSizeL1, x.BackOdds)
	}
	return imbalance(l)
}

// DepthImbalance sums liability over the first depthLimit back levels of each
// outcome's ladder. It returns an all-nil triplet when every ladder is empty.
func DepthImbalance(ladders [3][]models.PriceSize, depthLimit int) models.Triplet {
	if depthLimit <= 0 {
		depthLimit = DefaultDepthLimit
	}
	if len(ladders[0]) == 0 && len(ladders[1]) == 0 && len(ladders[2]) == 0 {
		return models.Triplet{}
	}
	var l [3]decimal.Decimal
	for i, ladder := range ladders {
		for j, level := range ladder {
			if j >= depthLimit {
				break
			}
			l[i] = l[i].Add(liability(&level.Size, &level.Price))
		}
	}
	return imbalance(l)
}

// InputsFromBucket builds L1 inputs from a bucket, preferring the best-level
// fields and falling back to the bucket medians.
func InputsFromBucket(b models.BucketSummary) Inputs {
	pick := func(primary, fallback *float64) *float64 {
		if primary != nil {
			return primary
		}
		return fallback
	}
	var in [3]L1Input
	for i, o := range models.Outcomes {
		in[i] = L1Input{
			BackSizeL1: pick(b.BestBackSizeL1.Get(o), b.MedianBackSize.Get(o)),
			BackOdds:   pick(b.BestBack.Get(o), b.MedianBackOdds.Get(o)),
		}
	}
	return Inputs{Home: in[0], Away: in[1], Draw: in[2]}
}

// Resolved is an impedance triplet with its provenance.
type Resolved struct {
	Value  models.Triplet `json:"value"`
	Index  *float64       `json:"index"`
	Source Source         `json:"source"`
}

// Resolve prefers the backend Impedance and falls back to Size-Impedance-L1.
func Resolve(b models.BucketSummary) Resolved {
	if b.ImpedanceAbsDiff.AnySet() || b.ImpedanceIndex15m != nil {
		return Resolved{Value: b.ImpedanceAbsDiff, Index: b.ImpedanceIndex15m, Source: SourceBackend}
	}
	v := SizeImpedanceL1(InputsFromBucket(b))
	if v.AllNil() {
		return Resolved{Source: SourceNone}
	}
	return Resolved{Value: v, Source: SourceSizeL1}
}
