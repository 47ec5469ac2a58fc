// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feudal

import (
	"errors"
	"fmt"

	"github.com/emer/emergent/evec"
	"github.com/emer/etable/etensor"
)

var (
	// ErrHorizon is returned by NewProcessor for a non-positive horizon.
	ErrHorizon = errors.New("feudal: horizon must be a positive integer")

	// ErrShapeMismatch is returned when the per-field slices of one
	// TrajBatch disagree in the number of timesteps.
	ErrShapeMismatch = errors.New("feudal: trajectory batch field lengths disagree")

	// ErrEmptyBatch is returned for a TrajBatch with zero timesteps --
	// there is nothing to pad or window.
	ErrEmptyBatch = errors.New("feudal: trajectory batch has no timesteps")
)

// TrajBatch is one contiguous fragment of a trajectory, as parallel
// per-timestep slices, produced by the environment-interaction side.
// Terminal marks that the fragment ends its episode.  All slices must cover
// the same number of timesteps.  GPrev carries, per step, the window of
// goals g[t-c..t] as a [c+1, D] tensor (the pooled-goal contract of the
// feudal worker).
type TrajBatch struct {
	Screen     []*etensor.Float32 `desc:"screen observations"`
	Minimap    []*etensor.Float32 `desc:"minimap observations"`
	NonSpatial []*etensor.Float32 `desc:"non-spatial observation vectors"`
	ActID      []int              `desc:"non-spatial action ids"`
	ActTarg    []evec.Vec2i       `desc:"spatial action targets"`
	MgrRet     []float32          `desc:"manager returns"`
	WkrRet     []float32          `desc:"worker returns"`
	S          []*etensor.Float32 `desc:"internal state embeddings"`
	G          []*etensor.Float32 `desc:"goal embeddings"`
	GPrev      []*etensor.Float32 `desc:"previous-goal windows, [c+1, D] per step"`
	Idx        []int              `desc:"global trajectory indexes"`
	Features   []*etensor.Float32 `desc:"opaque feature vectors"`
	Terminal   bool               `desc:"this fragment ends its episode"`
}

// Len returns the number of timesteps in the fragment.
func (tb *TrajBatch) Len() int {
	return len(tb.S)
}

// Validate checks that the fragment is non-empty and that every per-field
// slice covers the same number of timesteps.
func (tb *TrajBatch) Validate() error {
	n := tb.Len()
	if n == 0 {
		return ErrEmptyBatch
	}
	flds := []struct {
		nm string
		n  int
	}{
		{"Screen", len(tb.Screen)},
		{"Minimap", len(tb.Minimap)},
		{"NonSpatial", len(tb.NonSpatial)},
		{"ActID", len(tb.ActID)},
		{"ActTarg", len(tb.ActTarg)},
		{"MgrRet", len(tb.MgrRet)},
		{"WkrRet", len(tb.WkrRet)},
		{"G", len(tb.G)},
		{"GPrev", len(tb.GPrev)},
		{"Idx", len(tb.Idx)},
		{"Features", len(tb.Features)},
	}
	for _, fl := range flds {
		if fl.n != n {
			return fmt.Errorf("%w: %s has %d timesteps, S has %d", ErrShapeMismatch, fl.nm, fl.n, n)
		}
	}
	return nil
}

// Processor is the stateful temporal windowing engine.  It owns all
// cross-call buffers, applies front / back padding at episode boundaries,
// computes the windowed reductions over eligible timesteps, and trims its
// own state after every non-terminal call so memory stays O(2c) between
// calls.  One Processor per trajectory; calls must arrive in chronological
// order; not safe for concurrent use.
type Processor struct {
	Horizon int `desc:"temporal horizon c: window span for state differences, intrinsic reward and goal sums"`

	// lastTerminal is true while awaiting the start of a new episode;
	// the first call after construction or a terminal batch front-pads.
	lastTerminal bool

	screen     []*etensor.Float32
	minimap    []*etensor.Float32
	nonSpatial []*etensor.Float32
	actID      []int
	actTarg    []evec.Vec2i
	mgrRet     []float32
	wkrRet     []float32
	s          []*etensor.Float32
	g          []*etensor.Float32
	gSave      []*etensor.Float32 // raw goals aligned to buffer positions, emitted as GIn -- never back-padded
	gPrev      []*etensor.Float32
	idx        []int
	features   []*etensor.Float32

	dif []float32 // scratch for s[t] - s[t-i] in the ri loop -- prevent mem allocs
}

// NewProcessor returns a Processor with the given temporal horizon c >= 1.
func NewProcessor(c int) (*Processor, error) {
	if c < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrHorizon, c)
	}
	return &Processor{Horizon: c, lastTerminal: true}, nil
}

// InEpisode reports whether the processor holds buffered context from an
// unfinished episode.
func (pr *Processor) InEpisode() bool {
	return !pr.lastTerminal
}

// BufLen returns the current length of the cross-call buffers.
func (pr *Processor) BufLen() int {
	return len(pr.s)
}

// Reset discards all buffered context and returns to awaiting a new
// episode.  Called automatically after a terminal batch; the processor is
// then equivalent to a freshly constructed one and reusable indefinitely.
func (pr *Processor) Reset() {
	pr.lastTerminal = true
	pr.screen, pr.minimap, pr.nonSpatial = nil, nil, nil
	pr.actID, pr.actTarg = nil, nil
	pr.mgrRet, pr.wkrRet = nil, nil
	pr.s, pr.g, pr.gSave, pr.gPrev = nil, nil, nil, nil
	pr.idx, pr.features = nil, nil
}

// ProcessBatch consumes one trajectory fragment and returns the training
// batch of all timesteps whose windows are complete.  For a non-terminal
// fragment the last c buffered steps are withheld until the forward context
// arrives on the next call; a terminal fragment back-pads and emits every
// remaining real step, then resets.
func (pr *Processor) ProcessBatch(tb *TrajBatch) (*Batch, error) {
	if err := tb.Validate(); err != nil {
		return nil, err
	}
	pr.extend(tb)

	c := pr.Horizon
	length := len(pr.screen)
	end := length - c
	if tb.Terminal {
		end = length
	}

	bb := &Builder{}
	for t := c; t < end; t++ {
		sd := subTsr(pr.s[t+c], pr.s[t])

		ri := float32(0)
		for i := 1; i <= c; i++ {
			ri += CosineSim(pr.sDif(t, t-i), pr.g[t-i].Values)
		}
		ri /= float32(c)

		gsum := zerosLike(pr.g[t-c])
		for i := t - c; i <= t; i++ {
			addTsr(gsum, pr.g[i])
		}

		bb.Add(&Rec{
			Screen:     pr.screen[t],
			Minimap:    pr.minimap[t],
			NonSpatial: pr.nonSpatial[t],
			ActID:      pr.actID[t],
			ActTarg:    pr.actTarg[t],
			MgrRet:     pr.mgrRet[t],
			WkrRet:     pr.wkrRet[t],
			SDiff:      sd,
			Ri:         ri,
			GIn:        pr.gSave[t],
			Gsum:       gsum,
			GPrev:      pr.gPrev[t],
			Idx:        pr.idx[t],
			Features:   pr.features[t],
		})
	}

	if tb.Terminal {
		pr.Reset()
	} else {
		pr.trim()
	}
	return bb.Batch(), nil
}

// extend front-pads on episode start, appends the fragment to all buffers,
// and back-pads the state and goal buffers on a terminal fragment.  Both
// paddings can occur in the same call for a single-fragment episode.
func (pr *Processor) extend(tb *TrajBatch) {
	if pr.lastTerminal {
		pr.padFront(tb)
		pr.lastTerminal = false
	}

	pr.screen = append(pr.screen, tb.Screen...)
	pr.minimap = append(pr.minimap, tb.Minimap...)
	pr.nonSpatial = append(pr.nonSpatial, tb.NonSpatial...)
	pr.actID = append(pr.actID, tb.ActID...)
	pr.actTarg = append(pr.actTarg, tb.ActTarg...)
	pr.mgrRet = append(pr.mgrRet, tb.MgrRet...)
	pr.wkrRet = append(pr.wkrRet, tb.WkrRet...)
	pr.s = append(pr.s, tb.S...)
	pr.g = append(pr.g, tb.G...)
	pr.gSave = append(pr.gSave, tb.G...)
	pr.gPrev = append(pr.gPrev, tb.GPrev...)
	pr.idx = append(pr.idx, tb.Idx...)
	pr.features = append(pr.features, tb.Features...)

	if tb.Terminal {
		pr.padBack(tb)
	}
}

// padFront sets all buffers to c zero-valued placeholder steps shaped like
// the first real entries, so real data indexing is uniform from episode
// start.
func (pr *Processor) padFront(tb *TrajBatch) {
	c := pr.Horizon
	pr.screen = zeroTsrs(c, tb.Screen[0])
	pr.minimap = zeroTsrs(c, tb.Minimap[0])
	pr.nonSpatial = zeroTsrs(c, tb.NonSpatial[0])
	pr.s = zeroTsrs(c, tb.S[0])
	pr.g = zeroTsrs(c, tb.G[0])
	pr.gSave = zeroTsrs(c, tb.G[0])
	pr.gPrev = zeroTsrs(c, tb.GPrev[0])
	pr.features = zeroTsrs(c, tb.Features[0])
	pr.actID = make([]int, c)
	pr.actTarg = make([]evec.Vec2i, c)
	pr.mgrRet = make([]float32, c)
	pr.wkrRet = make([]float32, c)
	pr.idx = make([]int, c)
}

// padBack extends the state and goal buffers with c copies of their final
// real values, so the last c real steps have valid forward-looking windows.
// Only these two buffers need continuation values.
func (pr *Processor) padBack(tb *TrajBatch) {
	ls := tb.S[len(tb.S)-1]
	lg := tb.G[len(tb.G)-1]
	for i := 0; i < pr.Horizon; i++ {
		pr.s = append(pr.s, cloneTsr(ls))
		pr.g = append(pr.g, cloneTsr(lg))
	}
}

// trim retains only the last 2c entries of every buffer -- the minimal
// context required to resume window math on the next call.  Worker returns
// trim from their own buffer; gSave, gPrev and idx trim with everything
// else so all buffers stay aligned.
func (pr *Processor) trim() {
	st := len(pr.screen) - 2*pr.Horizon
	if st <= 0 {
		return
	}
	pr.screen = pr.screen[st:]
	pr.minimap = pr.minimap[st:]
	pr.nonSpatial = pr.nonSpatial[st:]
	pr.actID = pr.actID[st:]
	pr.actTarg = pr.actTarg[st:]
	pr.mgrRet = pr.mgrRet[st:]
	pr.wkrRet = pr.wkrRet[st:]
	pr.s = pr.s[st:]
	pr.g = pr.g[st:]
	pr.gSave = pr.gSave[st:]
	pr.gPrev = pr.gPrev[st:]
	pr.idx = pr.idx[st:]
	pr.features = pr.features[st:]
}

// sDif computes s[a] - s[b] into the shared scratch slice.  The result is
// only valid until the next call.
func (pr *Processor) sDif(a, b int) []float32 {
	av, bv := pr.s[a].Values, pr.s[b].Values
	if cap(pr.dif) < len(av) {
		pr.dif = make([]float32, len(av))
	}
	pr.dif = pr.dif[:len(av)]
	for i := range av {
		pr.dif[i] = av[i] - bv[i]
	}
	return pr.dif
}

// zeroTsrs returns n zero-valued tensors shaped like the given tensor.
func zeroTsrs(n int, like *etensor.Float32) []*etensor.Float32 {
	ts := make([]*etensor.Float32, n)
	for i := range ts {
		ts[i] = zerosLike(like)
	}
	return ts
}
