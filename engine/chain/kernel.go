package chain

import (
	"github.com/Carmen-Shannon/oxy-chain/common"
)

// StepRecords is the GPU kernel's software twin: it advances the GPU-layout
// records exactly as one dispatch of the chain_step kernel would, chain by
// chain. The dispatcher runs it in place of the hardware dispatch when no
// adapter is available, and the parity tests hold it against both Step and
// the kernel's declared semantics.
//
// Parameters:
//   - globals: merged buffer counts; chains beyond ChainCount are ignored
//   - particles: merged particle buffer, mutated in place
//   - chains: merged chain descriptors with rewritten offsets
//   - params: per-chain scalar records, parallel to chains
//   - transforms: merged per-particle write-back matrices
//   - colliders: merged collider buffer; each chain reads only its own range
func StepRecords(globals GPUGlobals, particles []GPUParticle, chains []GPUChain, params []GPUChainParams, transforms []GPUTransform, colliders []GPUCollider) {
	n := int(globals.ChainCount)
	if n > len(chains) {
		n = len(chains)
	}
	if n > len(params) {
		n = len(params)
	}

	for ci := 0; ci < n; ci++ {
		ch := &chains[ci]
		pr := &params[ci]

		loops := pr.LoopCount
		if loops < 1 {
			loops = 1
		}
		for l := int32(0); l < loops; l++ {
			stepRecordChain(particles, ch, pr, colliders)
		}

		end := ch.ParticleStart + ch.ParticleCount
		for i := ch.ParticleStart; i < end; i++ {
			pt := &particles[i]
			if pt.ParentIndex < 0 {
				continue
			}
			m := common.Mat4(transforms[i].WorldToParentLocal)
			simLocal := m.TransformPoint(vec3Of(pt.Position))
			blended := vec3Of(pt.TransformLocalPosition).Lerp(simLocal, pr.Weight)
			pt.TransformLocalPosition = arr3Of(blended)
		}
	}
}

// stepRecordChain advances one chain's records a single substep, mirroring
// stepTree on the GPU layout.
func stepRecordChain(particles []GPUParticle, ch *GPUChain, pr *GPUChainParams, colliders []GPUCollider) {
	if ch.ParticleCount == 0 {
		return
	}

	root := &particles[ch.ParticleStart]
	root.PrevPosition = root.Position
	root.Position = root.TransformPosition

	gravity := vec3Of(pr.Gravity)
	var pf common.Vec3
	if !gravity.IsZero() {
		fdir := gravity.Normalize()
		rest := vec3Of(ch.RestGravity).Dot(fdir)
		if rest > 0 {
			pf = fdir.Scale(rest)
		}
	}
	force := gravity.Sub(pf).Add(vec3Of(pr.Force)).Scale(pr.ObjectScale * pr.DeltaTime)
	objectMove := vec3Of(pr.ObjectMove)

	cStart := int(pr.ColliderStart)
	cEnd := cStart + int(pr.ColliderCount)

	end := ch.ParticleStart + ch.ParticleCount
	for i := ch.ParticleStart + 1; i < end; i++ {
		pt := &particles[i]
		parent := &particles[pt.ParentIndex]

		pos := vec3Of(pt.Position)
		preStep := pos

		damping := pt.Damping
		if pt.IsColliding != 0 {
			damping = common.Clamp01(damping + pt.Friction)
			pt.IsColliding = 0
		}

		v := pos.Sub(vec3Of(pt.PrevPosition))
		rmove := objectMove.Scale(pt.Inert)
		predicted := pos.Add(v.Scale(1 - damping)).Add(force).Add(rmove)

		parentPos := vec3Of(parent.Position)
		restLen := vec3Of(parent.TransformPosition).Distance(vec3Of(pt.TransformPosition))
		predicted = constrainLength(predicted, parentPos, restLen)

		if pt.Elasticity > 0 || pt.Stiffness > 0 {
			restTarget := parentPos.Add(vec3Of(pt.TransformPosition).Sub(vec3Of(parent.TransformPosition)))

			d := restTarget.Sub(predicted)
			predicted = predicted.Add(d.Scale(common.Clamp01(pt.Elasticity * pr.TimeVar)))

			if pt.Stiffness > 0 {
				d = restTarget.Sub(predicted)
				length := d.Length()
				maxLen := restLen * (1 - pt.Stiffness) * 2
				if length > maxLen {
					predicted = predicted.Add(d.Scale((length - maxLen) / length))
				}
			}
		}

		for c := cStart; c < cEnd && c < len(colliders); c++ {
			col := Collider{
				Type:   ColliderType(colliders[c].Type),
				Center: vec3Of(colliders[c].Center),
				Radius: colliders[c].Radius,
				Params: colliders[c].Params,
			}
			resolved, hit := col.Resolve(predicted, pt.Radius)
			if hit {
				predicted = resolved
				pt.IsColliding = 1
			}
		}
		predicted = constrainLength(predicted, parentPos, restLen)

		switch FreezeAxis(pr.FreezeAxis) {
		case FreezeX:
			predicted.X = preStep.X
		case FreezeY:
			predicted.Y = preStep.Y
		case FreezeZ:
			predicted.Z = preStep.Z
		}

		pt.PrevPosition = arr3Of(preStep.Add(rmove))
		pt.Position = arr3Of(predicted)
	}
}

func vec3Of(a [3]float32) common.Vec3 {
	return common.Vec3{X: a[0], Y: a[1], Z: a[2]}
}

func arr3Of(v common.Vec3) [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}
