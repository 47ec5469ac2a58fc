// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feudal

import (
	"math"
	"reflect"
	"testing"

	"github.com/emer/emergent/evec"
	"github.com/emer/etable/etensor"
)

// fillTsr returns a tensor of the given shape with every value set to v.
func fillTsr(shp []int, v float32) *etensor.Float32 {
	t := etensor.NewFloat32(shp, nil, nil)
	for i := range t.Values {
		t.Values[i] = v
	}
	return t
}

// testRec returns a record with embedding dim d and window width w, with
// every tensor filled with v.
func testRec(d, w, idx int, v float32) *Rec {
	return &Rec{
		Screen:     fillTsr([]int{2, 2}, v),
		Minimap:    fillTsr([]int{1, 1}, v),
		NonSpatial: fillTsr([]int{3}, v),
		ActID:      idx,
		ActTarg:    evec.Vec2i{X: idx, Y: idx + 1},
		MgrRet:     v,
		WkrRet:     2 * v,
		SDiff:      fillTsr([]int{d}, v),
		Ri:         v,
		GIn:        fillTsr([]int{d}, v),
		Gsum:       fillTsr([]int{d}, v),
		GPrev:      fillTsr([]int{w, d}, v),
		Idx:        idx,
		Features:   fillTsr([]int{d}, float32(idx)),
	}
}

func TestBuilderRanks(t *testing.T) {
	bb := &Builder{}
	bb.Add(testRec(3, 4, 7, 1))
	bb.Add(testRec(3, 4, 8, 2))
	b := bb.Batch()
	if b.NumRecs != 2 {
		t.Fatalf("NumRecs = %d, want 2", b.NumRecs)
	}
	checks := []struct {
		nm  string
		shp []int
		got *etensor.Float32
	}{
		{"Screen", []int{2, 2, 2}, b.Screen},
		{"NonSpatial", []int{2, 3}, b.NonSpatial},
		{"SDiff", []int{2, 3}, b.SDiff},
		{"GIn", []int{2, 3}, b.GIn},
		{"Gsum", []int{2, 3}, b.Gsum},
		{"GPrev", []int{2, 4, 3}, b.GPrev},
		{"Ri", []int{2}, b.Ri},
		{"MgrRet", []int{2}, b.MgrRet},
	}
	for _, ck := range checks {
		if !reflect.DeepEqual(ck.got.Shp, ck.shp) {
			t.Errorf("%s shape = %v, want %v", ck.nm, ck.got.Shp, ck.shp)
		}
	}
}

// A one-record batch must still come out rank 2 / rank 3 -- the rank
// contract is fixed at construction, not inferred from the data.
func TestBuilderSingleRecordRanks(t *testing.T) {
	bb := &Builder{}
	bb.Add(testRec(3, 4, 5, 1))
	b := bb.Batch()
	if !reflect.DeepEqual(b.GIn.Shp, []int{1, 3}) {
		t.Errorf("GIn shape = %v, want [1 3]", b.GIn.Shp)
	}
	if !reflect.DeepEqual(b.GPrev.Shp, []int{1, 4, 3}) {
		t.Errorf("GPrev shape = %v, want [1 4 3]", b.GPrev.Shp)
	}
	if !reflect.DeepEqual(b.SDiff.Shp, []int{1, 3}) {
		t.Errorf("SDiff shape = %v, want [1 3]", b.SDiff.Shp)
	}
}

// A size-1 embedding axis is never squeezed away.
func TestBuilderScalarEmbed(t *testing.T) {
	bb := &Builder{}
	bb.Add(testRec(1, 3, 0, 1))
	bb.Add(testRec(1, 3, 1, 2))
	b := bb.Batch()
	if !reflect.DeepEqual(b.SDiff.Shp, []int{2, 1}) {
		t.Errorf("SDiff shape = %v, want [2 1]", b.SDiff.Shp)
	}
	if !reflect.DeepEqual(b.GIn.Shp, []int{2, 1}) {
		t.Errorf("GIn shape = %v, want [2 1]", b.GIn.Shp)
	}
}

func TestBuilderFirstRecordMeta(t *testing.T) {
	bb := &Builder{}
	first := testRec(2, 3, 42, 1)
	bb.Add(first)
	bb.Add(testRec(2, 3, 43, 2))
	b := bb.Batch()
	if b.Idx != 42 {
		t.Errorf("Idx = %d, want first record's 42", b.Idx)
	}
	if b.Features != first.Features {
		t.Errorf("Features is not the first record's tensor")
	}
}

func TestBuilderGsumFromWindows(t *testing.T) {
	bb := &Builder{}
	rc := testRec(2, 3, 0, 0)
	rc.GPrev = etensor.NewFloat32([]int{3, 2}, nil, nil)
	copy(rc.GPrev.Values, []float32{1, 10, 2, 20, 3, 30}) // rows [1,10] [2,20] [3,30]
	bb.Add(rc)
	b := bb.Batch()
	want := []float32{6, 60}
	for j, wv := range want {
		got := b.Gsum.Values[j]
		if math.Abs(float64(got-wv)) > 1e-6 {
			t.Errorf("Gsum[0][%d] = %g, want %g", j, got, wv)
		}
	}
}

func TestBuilderEmpty(t *testing.T) {
	bb := &Builder{}
	b := bb.Batch()
	if b.NumRecs != 0 || b.Idx != -1 {
		t.Errorf("empty Batch: NumRecs = %d, Idx = %d, want 0, -1", b.NumRecs, b.Idx)
	}
	if b.Screen != nil || b.GIn != nil {
		t.Errorf("empty Batch should carry nil tensors")
	}
}
