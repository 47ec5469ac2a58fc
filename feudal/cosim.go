// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package feudal

import (
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// CosSimEps is added to the norm product in CosineSim so that near-zero
// vectors yield a similarity of 0 instead of dividing by zero.
const CosSimEps = 1e-8

// CosineSim returns the cosine similarity dot(u,v) / (|u|*|v| + CosSimEps)
// of two vectors.  Inputs are flat value slices (pass tensor .Values
// directly -- any higher-rank layout is treated as flattened).  If the
// lengths differ only the common prefix contributes.
func CosineSim(u, v []float32) float32 {
	n := len(u)
	if len(v) < n {
		n = len(v)
	}
	var dot, usq, vsq float32
	for i := 0; i < n; i++ {
		dot += u[i] * v[i]
		usq += u[i] * u[i]
		vsq += v[i] * v[i]
	}
	return dot / (mat32.Sqrt(usq)*mat32.Sqrt(vsq) + CosSimEps)
}

// zerosLike returns a new zero-valued tensor with the same shape as t.
func zerosLike(t *etensor.Float32) *etensor.Float32 {
	return etensor.NewFloat32(t.Shp, nil, nil)
}

// cloneTsr returns a copy of t.
func cloneTsr(t *etensor.Float32) *etensor.Float32 {
	return t.Clone().(*etensor.Float32)
}

// subTsr returns a - b elementwise as a new tensor shaped like a.
func subTsr(a, b *etensor.Float32) *etensor.Float32 {
	d := zerosLike(a)
	for i := range d.Values {
		d.Values[i] = a.Values[i] - b.Values[i]
	}
	return d
}

// addTsr adds t into dst elementwise.
func addTsr(dst, t *etensor.Float32) {
	for i := range dst.Values {
		dst.Values[i] += t.Values[i]
	}
}
