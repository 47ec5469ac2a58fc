// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feudal

import (
	"github.com/emer/emergent/evec"
	"github.com/emer/etable/etensor"
)

// Rec is one processed timestep emitted by the Processor into a Builder:
// the raw trajectory fields at that step together with the windowed
// reductions computed for it.
type Rec struct {
	Screen     *etensor.Float32 `desc:"screen observation"`
	Minimap    *etensor.Float32 `desc:"minimap observation"`
	NonSpatial *etensor.Float32 `desc:"non-spatial observation vector"`
	ActID      int              `desc:"non-spatial action id"`
	ActTarg    evec.Vec2i       `desc:"spatial action target"`
	MgrRet     float32          `desc:"manager return"`
	WkrRet     float32          `desc:"worker return"`
	SDiff      *etensor.Float32 `desc:"state difference s[t+c] - s[t]"`
	Ri         float32          `desc:"intrinsic reward"`
	GIn        *etensor.Float32 `desc:"goal embedding at this step"`
	Gsum       *etensor.Float32 `desc:"summed goal window g[t-c..t]"`
	GPrev      *etensor.Float32 `desc:"previous-goal window, [Time, Embed]"`
	Idx        int              `desc:"global trajectory index of this step"`
	Features   *etensor.Float32 `desc:"opaque feature vector (e.g. recurrent cell state)"`
}

// Batch is one finalized training minibatch over N processed records.
// Ranks are fixed by construction from the first record added to the
// Builder: GIn and SDiff are always [N, D] (a size-1 embedding axis is never
// squeezed away), GPrev is always [N, W, D], observations carry their cell
// shape behind a leading N axis.  Idx and Features are the metadata of the
// first record only -- they stand for the whole batch downstream.
type Batch struct {
	Screen     *etensor.Float32 `desc:"screen observations, [N, ...]"`
	Minimap    *etensor.Float32 `desc:"minimap observations, [N, ...]"`
	NonSpatial *etensor.Float32 `desc:"non-spatial observations, [N, K]"`
	ActID      []int            `desc:"non-spatial action ids"`
	ActTarg    []evec.Vec2i     `desc:"spatial action targets"`
	MgrRet     *etensor.Float32 `desc:"manager returns, [N]"`
	WkrRet     *etensor.Float32 `desc:"worker returns, [N]"`
	SDiff      *etensor.Float32 `desc:"state differences, [N, D]"`
	Ri         *etensor.Float32 `desc:"intrinsic rewards, [N]"`
	GIn        *etensor.Float32 `desc:"goal embeddings, [N, D]"`
	Gsum       *etensor.Float32 `desc:"summed goal windows, [N, D]"`
	GPrev      *etensor.Float32 `desc:"previous-goal windows, [N, W, D]"`
	NumRecs    int              `desc:"number of records N"`
	Idx        int              `desc:"trajectory index of the first record, -1 if empty"`
	Features   *etensor.Float32 `desc:"feature vector of the first record"`
}

// Builder accumulates processed records and assembles them into one Batch.
// It is the struct-of-arrays form of Rec: one growable sequence per field,
// with Add as the only mutation surface.  The Processor creates a fresh
// Builder for every ProcessBatch call.
type Builder struct {
	screen     []*etensor.Float32
	minimap    []*etensor.Float32
	nonSpatial []*etensor.Float32
	actID      []int
	actTarg    []evec.Vec2i
	mgrRet     []float32
	wkrRet     []float32
	sDiff      []*etensor.Float32
	ri         []float32
	gIn        []*etensor.Float32
	gsum       []*etensor.Float32
	gPrev      []*etensor.Float32
	idx        []int
	features   []*etensor.Float32
}

// Add appends all fields of one record.  Per-field shapes are trusted to be
// mutually consistent across all records added to one Builder.
func (bb *Builder) Add(rc *Rec) {
	bb.screen = append(bb.screen, rc.Screen)
	bb.minimap = append(bb.minimap, rc.Minimap)
	bb.nonSpatial = append(bb.nonSpatial, rc.NonSpatial)
	bb.actID = append(bb.actID, rc.ActID)
	bb.actTarg = append(bb.actTarg, rc.ActTarg)
	bb.mgrRet = append(bb.mgrRet, rc.MgrRet)
	bb.wkrRet = append(bb.wkrRet, rc.WkrRet)
	bb.sDiff = append(bb.sDiff, rc.SDiff)
	bb.ri = append(bb.ri, rc.Ri)
	bb.gIn = append(bb.gIn, rc.GIn)
	bb.gsum = append(bb.gsum, rc.Gsum)
	bb.gPrev = append(bb.gPrev, rc.GPrev)
	bb.idx = append(bb.idx, rc.Idx)
	bb.features = append(bb.features, rc.Features)
}

// Len returns the number of records added so far.
func (bb *Builder) Len() int {
	return len(bb.idx)
}

// Batch assembles the accumulated records into a Batch.  Gsum is
// reconstructed by summing each previous-goal window over its time axis;
// with the standard W = c+1 window contract this equals the per-record Gsum
// values passed to Add.  If no records were added (a short non-terminal
// fragment can emit no complete windows) the result has NumRecs 0, Idx -1
// and nil tensors.
func (bb *Builder) Batch() *Batch {
	n := bb.Len()
	if n == 0 {
		return &Batch{NumRecs: 0, Idx: -1}
	}
	gsum := make([]*etensor.Float32, n)
	for i, gp := range bb.gPrev {
		gsum[i] = sumRows(gp)
	}
	return &Batch{
		Screen:     stack(bb.screen),
		Minimap:    stack(bb.minimap),
		NonSpatial: stack(bb.nonSpatial),
		ActID:      append([]int(nil), bb.actID...),
		ActTarg:    append([]evec.Vec2i(nil), bb.actTarg...),
		MgrRet:     vecTsr(bb.mgrRet),
		WkrRet:     vecTsr(bb.wkrRet),
		SDiff:      stack(bb.sDiff),
		Ri:         vecTsr(bb.ri),
		GIn:        stack(bb.gIn),
		Gsum:       stack(gsum),
		GPrev:      stack(bb.gPrev),
		NumRecs:    n,
		Idx:        bb.idx[0],
		Features:   bb.features[0],
	}
}

// stack packs n same-shaped tensors into one tensor with a leading N axis.
func stack(ts []*etensor.Float32) *etensor.Float32 {
	shp := append([]int{len(ts)}, ts[0].Shp...)
	out := etensor.NewFloat32(shp, nil, nil)
	cl := ts[0].Len()
	for i, t := range ts {
		copy(out.Values[i*cl:(i+1)*cl], t.Values)
	}
	return out
}

// vecTsr wraps a value slice as a 1D tensor.
func vecTsr(vs []float32) *etensor.Float32 {
	out := etensor.NewFloat32([]int{len(vs)}, nil, nil)
	copy(out.Values, vs)
	return out
}

// sumRows sums a [W, D] window tensor over its leading time axis into [D].
func sumRows(t *etensor.Float32) *etensor.Float32 {
	w := t.Dim(0)
	d := t.Len() / w
	out := etensor.NewFloat32([]int{d}, nil, nil)
	for i := 0; i < w; i++ {
		for j := 0; j < d; j++ {
			out.Values[j] += t.Values[i*d+j]
		}
	}
	return out
}
