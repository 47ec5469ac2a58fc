// Copyright (c) 2020, The NL-FuN Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package feudal converts a stream of per-timestep trajectory fragments from a
hierarchical (manager / worker) agent into fixed-horizon training batches,
computing the intrinsic reward and pooled goal-embedding aggregates the
learner consumes.

The Processor is the stateful core: it buffers trajectory data across
successive ProcessBatch calls, pads at episode boundaries so that every real
timestep gets a complete backward and forward window, computes the windowed
reductions (state differences, cosine-alignment intrinsic reward, goal sums),
and trims its buffers back to a fixed amount of context after every
non-terminal call, so memory stays bounded no matter how long an episode runs.

One Processor serves exactly one trajectory and its calls must arrive in
chronological order.  Run parallel environments with one Processor each.
*/
package feudal
