// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trajenv provides a lightweight gridworld environment and a
// trajectory collector that together produce the fragment batches consumed
// by the feudal windowing processor.  The environment emits the standard
// observation set (screen, minimap, non-spatial vector); the collector adds
// the latent state and goal embeddings on top.
package trajenv

import (
	"math/rand"

	"github.com/emer/emergent/env"
	"github.com/emer/emergent/erand"
	"github.com/emer/emergent/evec"
	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
	"github.com/goki/mat32"
)

// Actions is a list of available actions for the agent
type Actions int

//go:generate stringer -type=Actions

var KiT_Actions = kit.Enums.AddEnum(ActionsN, false, nil)

// The actions avail
const (
	NoAction Actions = iota
	MoveUp
	MoveDown
	MoveLeft
	MoveRight

	ActionsN
)

var KiT_Env = kit.Types.AddType(&Env{}, nil)

// Env is a flat gridworld: the agent moves on a bounded 2D plane, episodes
// run a fixed number of events, and observations are rendered as an
// agent-centered blob on the screen, a coarse minimap, and a non-spatial
// vector of the current action plus episode phase.
type Env struct {
	Nm          string          `desc:"name of this environment"`
	Dsc         string          `desc:"description of this environment"`
	Run         env.Ctr         `view:"inline" desc:"current run of model as provided during Init"`
	Epoch       env.Ctr         `view:"inline" desc:"number of completed episodes"`
	Event       env.Ctr         `view:"inline" desc:"step within the current episode"`
	ScreenSize  evec.Vec2i      `desc:"size of the screen observation"`
	MinimapSize evec.Vec2i      `desc:"size of the coarse minimap observation"`
	NNonSpatial int             `desc:"length of the non-spatial observation vector"`
	MoveStep    float32         `desc:"how far to move every step"`
	PExplore    float32         `desc:"probability of taking a uniform random action instead of repeating the current one"`
	Pos         mat32.Vec2      `desc:"continuous agent position in screen coordinates"`
	PosI        evec.Vec2i      `desc:"rounded agent position"`
	CurAct      Actions         `desc:"current action selected"`
	PrvAct      Actions         `desc:"previous action selected"`
	Screen      etensor.Float32 `desc:"screen observation, Y x X"`
	Minimap     etensor.Float32 `desc:"minimap observation, Y x X"`
	NonSpatial  etensor.Float32 `desc:"non-spatial observation vector"`
}

func (ev *Env) Name() string { return ev.Nm }
func (ev *Env) Desc() string { return ev.Dsc }

func (ev *Env) Defaults() {
	ev.ScreenSize = evec.Vec2i{X: 8, Y: 8}
	ev.MinimapSize = evec.Vec2i{X: 4, Y: 4}
	ev.NNonSpatial = int(ActionsN) + 1
	ev.MoveStep = 1
	ev.PExplore = 0.3
	ev.Event.Max = 64
}

func (ev *Env) Validate() error {
	return nil
}

func (ev *Env) Init(run int) {
	ev.Run.Scale = env.Run
	ev.Epoch.Scale = env.Epoch
	ev.Event.Scale = env.Event
	ev.Run.Init()
	ev.Epoch.Init()
	ev.Event.Init()
	ev.Run.Cur = run
	ev.Screen.SetShape([]int{ev.ScreenSize.Y, ev.ScreenSize.X}, nil, []string{"Y", "X"})
	ev.Minimap.SetShape([]int{ev.MinimapSize.Y, ev.MinimapSize.X}, nil, []string{"Y", "X"})
	ev.NonSpatial.SetShape([]int{ev.NNonSpatial}, nil, []string{"NonSpatial"})
	ev.CurAct = NoAction
	ev.PrvAct = NoAction
	ev.CenterAgent()
	ev.Render()
}

// Step advances the environment one event: pick the next action, move, and
// re-render.  When the event counter wraps, the epoch counter increments and
// the agent re-centers for the next episode; the observation captured for
// the wrapping step is rendered before the reset.
func (ev *Env) Step() bool {
	ev.PrvAct = ev.CurAct
	if erand.BoolProb(float64(ev.PExplore), -1) {
		ev.CurAct = Actions(rand.Intn(int(ActionsN)))
	}
	ev.TakeAction(ev.CurAct)
	ev.Render()
	ev.Epoch.Same() // good idea to just reset all non-inner-most counters at start
	if ev.Event.Incr() {
		ev.Epoch.Incr()
		ev.CenterAgent()
	}
	return true
}

func (ev *Env) States() env.Elements {
	els := env.Elements{
		{Name: "Screen", Shape: []int{ev.ScreenSize.Y, ev.ScreenSize.X}, DimNames: []string{"Y", "X"}},
		{Name: "Minimap", Shape: []int{ev.MinimapSize.Y, ev.MinimapSize.X}, DimNames: []string{"Y", "X"}},
		{Name: "NonSpatial", Shape: []int{ev.NNonSpatial}, DimNames: []string{"NonSpatial"}},
	}
	return els
}

func (ev *Env) State(element string) etensor.Tensor {
	switch element {
	case "Screen":
		return &ev.Screen
	case "Minimap":
		return &ev.Minimap
	case "NonSpatial":
		return &ev.NonSpatial
	}
	return nil
}

func (ev *Env) Counters() []env.TimeScales {
	return []env.TimeScales{env.Run, env.Epoch, env.Event}
}

func (ev *Env) Counter(scale env.TimeScales) (cur, prv int, chg bool) {
	switch scale {
	case env.Run:
		return ev.Run.Query()
	case env.Epoch:
		return ev.Epoch.Query()
	case env.Event:
		return ev.Event.Query()
	}
	return -1, -1, false
}

func (ev *Env) Actions() env.Elements {
	els := env.Elements{
		{Name: "Action", Shape: []int{1}},
	}
	return els
}

// Action takes the input as a float -> int representation of action,
// with only 1 element (no parameters)
func (ev *Env) Action(element string, input etensor.Tensor) {
	ev.PrvAct = ev.CurAct
	ev.CurAct = Actions(input.FloatVal1D(0))
}

// SetAction is easier non-standard interface just for this
func (ev *Env) SetAction(act Actions) {
	ev.PrvAct = ev.CurAct
	ev.CurAct = act
}

// TakeAction implements given action, clamping the position to the screen.
func (ev *Env) TakeAction(act Actions) {
	switch act {
	case MoveUp:
		ev.Pos.Y -= ev.MoveStep
	case MoveDown:
		ev.Pos.Y += ev.MoveStep
	case MoveLeft:
		ev.Pos.X -= ev.MoveStep
	case MoveRight:
		ev.Pos.X += ev.MoveStep
	}
	ev.Pos.X = mat32.Clamp(ev.Pos.X, 0, float32(ev.ScreenSize.X-1))
	ev.Pos.Y = mat32.Clamp(ev.Pos.Y, 0, float32(ev.ScreenSize.Y-1))
	ev.PosI = evec.NewVec2iFmVec2Round(ev.Pos)
}

// CenterAgent puts the agent at the center of the screen.
func (ev *Env) CenterAgent() {
	ev.Pos = mat32.Vec2{X: float32(ev.ScreenSize.X) / 2, Y: float32(ev.ScreenSize.Y) / 2}
	ev.PosI = evec.NewVec2iFmVec2Round(ev.Pos)
}

// Render updates the observation tensors from the current agent state.
// The screen carries a unit blob at the agent position, the minimap the
// same at coarse resolution, and the non-spatial vector a 1-hot of the
// current action plus the normalized episode phase.
func (ev *Env) Render() {
	ev.Screen.SetZeros()
	ev.Screen.Set([]int{ev.PosI.Y, ev.PosI.X}, 1)

	ev.Minimap.SetZeros()
	mx := ev.PosI.X * ev.MinimapSize.X / ev.ScreenSize.X
	my := ev.PosI.Y * ev.MinimapSize.Y / ev.ScreenSize.Y
	ev.Minimap.Set([]int{my, mx}, 1)

	ev.NonSpatial.SetZeros()
	ev.NonSpatial.SetFloat1D(int(ev.CurAct), 1)
	ev.NonSpatial.SetFloat1D(int(ActionsN), float64(ev.Event.Cur)/float64(ev.Event.Max))
}

// Reward returns the extrinsic reward for the current position: 1 at the
// screen center falling off linearly to 0 at the corners.
func (ev *Env) Reward() float32 {
	ctr := mat32.Vec2{X: float32(ev.ScreenSize.X) / 2, Y: float32(ev.ScreenSize.Y) / 2}
	maxd := ctr.Length()
	if maxd == 0 {
		return 1
	}
	return 1 - ev.Pos.DistTo(ctr)/maxd
}

// Compile-time check that Env implements the env.Env interface
var _ env.Env = (*Env)(nil)
