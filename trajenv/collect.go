// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trajenv

import (
	"math/rand"

	"github.com/emer/emergent/env"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"

	"github.com/sapiosexual/NL-FuN/feudal"
)

// Collector drives an Env and assembles trajectory fragments for the
// windowing processor.  It maintains the latent side of the trajectory: a
// state embedding that drifts toward the active goal, a goal embedding
// refreshed every Horizon steps, discounted manager and worker returns, and
// the per-step previous-goal windows.
type Collector struct {
	Env      *Env        `desc:"environment driven by this collector"`
	Horizon  int         `desc:"goal refresh period; also the width-1 of the previous-goal windows"`
	EmbedDim int         `desc:"dimensionality of the state and goal embeddings"`
	SDrift   float32     `desc:"per-step drift of the state embedding toward the active goal"`
	SNoise   float32     `desc:"per-step uniform noise magnitude on the state embedding"`
	Gamma    float32     `desc:"discount factor for the running returns"`
	S        []float32   `desc:"current state embedding"`
	G        []float32   `desc:"current goal embedding"`
	MgrRet   float32     `desc:"running discounted manager return"`
	WkrRet   float32     `desc:"running discounted worker return"`
	StepIdx  int         `desc:"global step index across all episodes"`
	epStep   int         // step within the current episode
	goals    [][]float32 // goals of the current episode, for window assembly
}

func (cl *Collector) Defaults() {
	cl.Horizon = 10
	cl.EmbedDim = 8
	cl.SDrift = 0.1
	cl.SNoise = 0.05
	cl.Gamma = 0.99
}

// Init resets all embeddings, returns and counters.  The Env must already
// be initialized.
func (cl *Collector) Init() {
	cl.S = make([]float32, cl.EmbedDim)
	cl.G = cl.newGoal()
	cl.MgrRet = 0
	cl.WkrRet = 0
	cl.StepIdx = 0
	cl.epStep = 0
	cl.goals = [][]float32{}
}

// newGoal returns a random unit vector in embedding space.
func (cl *Collector) newGoal() []float32 {
	g := make([]float32, cl.EmbedDim)
	var sq float32
	for i := range g {
		g[i] = rand.Float32()*2 - 1
		sq += g[i] * g[i]
	}
	nrm := mat32.Sqrt(sq)
	if nrm > 0 {
		for i := range g {
			g[i] /= nrm
		}
	}
	return g
}

// Collect steps the environment up to n times and returns the resulting
// fragment.  Collection stops early at an episode boundary, in which case
// the fragment is marked Terminal; the caller then resumes with the next
// Collect call on the new episode.
func (cl *Collector) Collect(n int) *feudal.TrajBatch {
	tb := &feudal.TrajBatch{}
	for i := 0; i < n; i++ {
		term := cl.stepOnce(tb)
		if term {
			tb.Terminal = true
			break
		}
	}
	return tb
}

// stepOnce advances the environment one step and appends the step to tb,
// reporting whether the step ended its episode.
func (cl *Collector) stepOnce(tb *feudal.TrajBatch) bool {
	ev := cl.Env

	if cl.epStep%cl.Horizon == 0 && cl.epStep > 0 {
		cl.G = cl.newGoal()
	}
	cl.goals = append(cl.goals, append([]float32(nil), cl.G...))

	ev.Step()
	_, _, term := ev.Counter(env.Epoch)

	for i := range cl.S {
		cl.S[i] += cl.SDrift*cl.G[i] + cl.SNoise*(rand.Float32()*2-1)
	}

	rw := ev.Reward()
	cl.MgrRet = rw + cl.Gamma*cl.MgrRet
	cl.WkrRet = 0.5*rw + cl.Gamma*cl.WkrRet

	tb.Screen = append(tb.Screen, ev.Screen.Clone().(*etensor.Float32))
	tb.Minimap = append(tb.Minimap, ev.Minimap.Clone().(*etensor.Float32))
	tb.NonSpatial = append(tb.NonSpatial, ev.NonSpatial.Clone().(*etensor.Float32))
	tb.ActID = append(tb.ActID, int(ev.CurAct))
	tb.ActTarg = append(tb.ActTarg, ev.PosI)
	tb.MgrRet = append(tb.MgrRet, cl.MgrRet)
	tb.WkrRet = append(tb.WkrRet, cl.WkrRet)
	tb.S = append(tb.S, vecTsr(cl.S))
	tb.G = append(tb.G, vecTsr(cl.G))
	tb.GPrev = append(tb.GPrev, cl.goalWindow())
	tb.Idx = append(tb.Idx, cl.StepIdx)
	tb.Features = append(tb.Features, vecTsr(cl.S))

	cl.StepIdx++
	cl.epStep++
	if term {
		cl.resetEpisode()
	}
	return term
}

// resetEpisode clears the per-episode state at an episode boundary.  The
// state embedding carries across as a recurrent agent's hidden state would.
func (cl *Collector) resetEpisode() {
	cl.epStep = 0
	cl.goals = [][]float32{}
	cl.G = cl.newGoal()
	cl.MgrRet = 0
	cl.WkrRet = 0
}

// goalWindow assembles the [Horizon+1, EmbedDim] window of goals ending at
// the current step, with zero rows before the episode start.
func (cl *Collector) goalWindow() *etensor.Float32 {
	w := cl.Horizon + 1
	out := etensor.NewFloat32([]int{w, cl.EmbedDim}, nil, []string{"Time", "Embed"})
	ng := len(cl.goals)
	for i := 0; i < w; i++ {
		gi := ng - w + i
		if gi < 0 {
			continue
		}
		copy(out.Values[i*cl.EmbedDim:(i+1)*cl.EmbedDim], cl.goals[gi])
	}
	return out
}

// vecTsr copies a value slice into a 1D tensor.
func vecTsr(vs []float32) *etensor.Float32 {
	out := etensor.NewFloat32([]int{len(vs)}, nil, nil)
	copy(out.Values, vs)
	return out
}
