package chain

import "github.com/Carmen-Shannon/oxy-chain/common"

// Step advances every chain one step. It is pure data-in/data-out: no
// allocation, no I/O, no dependence on anything but its arguments. The CPU
// component calls it directly; the compute kernel is a transliteration of the
// same sequence, kept equivalent by the parity tests rather than shared code.
//
// Particles are mutated in place in parent-before-child order, so each
// particle constrains against its parent's already-updated position.
// Transforms, when non-nil, hold one world-to-parent-local matrix per
// particle and enable the weight-blended local write-back into
// TransformLocalPosition after the final substep; a nil slice skips the
// write-back (positions only).
//
// Parameters:
//   - particles: the component's particle buffer
//   - trees: chain descriptors indexing into particles
//   - transforms: per-particle world-to-parent-local matrices, or nil
//   - colliders: this tick's collider snapshot, applied in order
//   - p: per-component scalars
func Step(particles []Particle, trees []Tree, transforms []common.Mat4, colliders []Collider, p StepParams) {
	loops := p.LoopCount
	if loops < 1 {
		loops = 1
	}

	for loop := int32(0); loop < loops; loop++ {
		for t := range trees {
			stepTree(particles, &trees[t], colliders, p)
		}
	}

	if transforms == nil {
		return
	}
	for t := range trees {
		tree := &trees[t]
		for i := tree.ParticleStart + 1; i < tree.ParticleStart+tree.ParticleCount; i++ {
			pt := &particles[i]
			simLocal := transforms[i].TransformPoint(pt.Position)
			pt.TransformLocalPosition = pt.TransformLocalPosition.Lerp(simLocal, p.Weight)
		}
	}
}

// stepTree advances a single chain one substep.
func stepTree(particles []Particle, tree *Tree, colliders []Collider, p StepParams) {
	if tree.ParticleCount == 0 {
		return
	}

	// Root anchoring: the first particle carries no physics freedom.
	root := &particles[tree.ParticleStart]
	root.PrevPosition = root.Position
	root.Position = root.TransformPosition

	// The gravity component already expressed by the rest pose is cancelled so
	// a chain hanging along gravity at rest stays at rest.
	var pf common.Vec3
	if !p.Gravity.IsZero() {
		fdir := p.Gravity.Normalize()
		rest := tree.RestGravity.Dot(fdir)
		if rest > 0 {
			pf = fdir.Scale(rest)
		}
	}
	force := p.Gravity.Sub(pf).Add(p.Force).Scale(p.ObjectScale * p.DeltaTime)

	for i := tree.ParticleStart + 1; i < tree.ParticleStart+tree.ParticleCount; i++ {
		pt := &particles[i]
		parent := &particles[pt.ParentIndex]

		preStep := pt.Position

		// Colliding particles bleed extra velocity through Friction.
		damping := pt.Damping
		if pt.IsColliding {
			damping = common.Clamp01(damping + pt.Friction)
			pt.IsColliding = false
		}

		// Verlet predict with the chain base's inertial movement mixed in by
		// the per-particle Inert parameter.
		v := pt.Position.Sub(pt.PrevPosition)
		rmove := p.ObjectMove.Scale(pt.Inert)
		predicted := pt.Position.Add(v.Scale(1 - damping)).Add(force).Add(rmove)

		restLen := parent.TransformPosition.Distance(pt.TransformPosition)
		predicted = constrainLength(predicted, parent.Position, restLen)

		if pt.Elasticity > 0 || pt.Stiffness > 0 {
			// Rest target: the parent's simulated position plus the authored
			// offset in the current animated pose.
			restTarget := parent.Position.Add(pt.TransformPosition.Sub(parent.TransformPosition))

			d := restTarget.Sub(predicted)
			predicted = predicted.Add(d.Scale(common.Clamp01(pt.Elasticity * p.TimeVar)))

			if pt.Stiffness > 0 {
				d = restTarget.Sub(predicted)
				length := d.Length()
				maxLen := restLen * (1 - pt.Stiffness) * 2
				if length > maxLen {
					predicted = predicted.Add(d.Scale((length - maxLen) / length))
				}
			}
		}

		for c := range colliders {
			resolved, hit := colliders[c].Resolve(predicted, pt.Radius)
			if hit {
				predicted = resolved
				pt.IsColliding = true
			}
		}
		// Collisions may not violate bone length.
		predicted = constrainLength(predicted, parent.Position, restLen)

		switch p.FreezeAxis {
		case FreezeX:
			predicted.X = preStep.X
		case FreezeY:
			predicted.Y = preStep.Y
		case FreezeZ:
			predicted.Z = preStep.Z
		}

		pt.PrevPosition = preStep.Add(rmove)
		pt.Position = predicted
	}
}

// constrainLength projects pos onto the sphere of radius restLen around
// anchor. Positions within Epsilon of the anchor are left in place.
func constrainLength(pos, anchor common.Vec3, restLen float32) common.Vec3 {
	diff := anchor.Sub(pos)
	length := diff.Length()
	if length <= common.Epsilon {
		return pos
	}
	return pos.Add(diff.Scale((length - restLen) / length))
}
