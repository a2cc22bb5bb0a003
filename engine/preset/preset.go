// Package preset loads chain tuning from YAML files so artists can adjust
// damping, stiffness, colliders and the rest without touching code. A preset
// mirrors the simulator's parameter surface and applies onto a live
// simulator, which pairs with Watcher for hot reloading during tuning.
package preset

import (
	"fmt"
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-chain/common"
	"github.com/Carmen-Shannon/oxy-chain/engine/chain"
	"github.com/Carmen-Shannon/oxy-chain/engine/simulator"

	"gopkg.in/yaml.v3"
)

// ChainPreset is the on-disk tuning for one chain simulator. Every field is
// optional; Apply only touches parameters the file provides, so a preset can
// override a single value and leave the rest of the simulator alone.
type ChainPreset struct {
	Name              string         `yaml:"name"`
	Roots             []string       `yaml:"roots"`
	Exclusions        []string       `yaml:"exclusions"`
	EndLength         *float32       `yaml:"end_length"`
	EndOffset         *VectorSpec    `yaml:"end_offset"`
	Damping           *CurveSpec     `yaml:"damping"`
	Elasticity        *CurveSpec     `yaml:"elasticity"`
	Stiffness         *CurveSpec     `yaml:"stiffness"`
	Inert             *CurveSpec     `yaml:"inert"`
	Friction          *CurveSpec     `yaml:"friction"`
	Radius            *CurveSpec     `yaml:"radius"`
	Gravity           *VectorSpec    `yaml:"gravity"`
	Force             *VectorSpec    `yaml:"force"`
	Weight            *float32       `yaml:"weight"`
	FreezeAxis        string         `yaml:"freeze_axis"`
	UpdateMode        string         `yaml:"update_mode"`
	UpdateRate        *float32       `yaml:"update_rate"`
	RootInertia       *float32       `yaml:"root_inertia"`
	VelocitySmoothing *float32       `yaml:"velocity_smoothing"`
	DistantDisable    *bool          `yaml:"distant_disable"`
	DistanceToObject  *float32       `yaml:"distance_to_object"`
	Colliders         []ColliderSpec `yaml:"colliders"`

	freezeAxis chain.FreezeAxis
	updateMode simulator.UpdateMode
	colliders  []chain.Collider
}

// Load reads and validates a preset file.
//
// Parameters:
//   - path: the YAML file to read
//
// Returns:
//   - *ChainPreset: the parsed preset
//   - error: read, decode, or validation failure
func Load(path string) (*ChainPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("preset: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a preset from YAML bytes.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - *ChainPreset: the parsed preset
//   - error: decode or validation failure
func Parse(data []byte) (*ChainPreset, error) {
	var p ChainPreset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// validate resolves the string enums and collider specs so Apply cannot fail
// on anything but the simulator's own rebuild.
func (p *ChainPreset) validate() error {
	if p.FreezeAxis != "" {
		axis, err := parseFreezeAxis(p.FreezeAxis)
		if err != nil {
			return err
		}
		p.freezeAxis = axis
	}
	if p.UpdateMode != "" {
		mode, err := parseUpdateMode(p.UpdateMode)
		if err != nil {
			return err
		}
		p.updateMode = mode
	}
	p.colliders = nil
	for i, spec := range p.Colliders {
		c, err := spec.build()
		if err != nil {
			return fmt.Errorf("collider %d: %w", i, err)
		}
		p.colliders = append(p.colliders, c)
	}
	return nil
}

// Apply copies every value the preset provides onto the simulator and then
// rebuilds its chains so topology and curve changes take effect immediately.
//
// Parameters:
//   - sim: the simulator to configure
//
// Returns:
//   - error: chain rebuild failure, such as an unresolved root name
func (p *ChainPreset) Apply(sim simulator.Simulator) error {
	if len(p.Roots) > 0 {
		sim.SetRootNames(p.Roots...)
	}
	if len(p.Exclusions) > 0 {
		sim.SetExclusionNames(p.Exclusions...)
	}
	if p.EndLength != nil {
		sim.SetEndLength(*p.EndLength)
	}
	if p.EndOffset != nil {
		sim.SetEndOffset(p.EndOffset.vec())
	}
	if c := p.Damping.Curve(); c != nil {
		sim.SetDamping(c)
	}
	if c := p.Elasticity.Curve(); c != nil {
		sim.SetElasticity(c)
	}
	if c := p.Stiffness.Curve(); c != nil {
		sim.SetStiffness(c)
	}
	if c := p.Inert.Curve(); c != nil {
		sim.SetInert(c)
	}
	if c := p.Friction.Curve(); c != nil {
		sim.SetFriction(c)
	}
	if c := p.Radius.Curve(); c != nil {
		sim.SetRadius(c)
	}
	if p.Gravity != nil {
		sim.SetGravity(p.Gravity.vec())
	}
	if p.Force != nil {
		sim.SetForce(p.Force.vec())
	}
	if p.Weight != nil {
		sim.SetWeight(*p.Weight)
	}
	if p.FreezeAxis != "" {
		sim.SetFreezeAxis(p.freezeAxis)
	}
	if p.UpdateMode != "" {
		sim.SetUpdateMode(p.updateMode)
	}
	if p.UpdateRate != nil {
		sim.SetUpdateRate(*p.UpdateRate)
	}
	if p.RootInertia != nil {
		sim.SetRootInertia(*p.RootInertia)
	}
	if p.VelocitySmoothing != nil {
		sim.SetVelocitySmoothing(*p.VelocitySmoothing)
	}
	if p.DistantDisable != nil {
		sim.SetDistantDisable(*p.DistantDisable)
	}
	if p.DistanceToObject != nil {
		sim.SetDistanceToObject(*p.DistanceToObject)
	}
	if len(p.colliders) > 0 {
		sim.SetColliders(p.colliders)
	}
	return sim.RebuildChains()
}

// VectorSpec is a 3-component vector that accepts either a {x, y, z} mapping
// or a [x, y, z] sequence.
type VectorSpec struct {
	X float32 `yaml:"x"`
	Y float32 `yaml:"y"`
	Z float32 `yaml:"z"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *VectorSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var parts []float32
		if err := value.Decode(&parts); err != nil {
			return err
		}
		if len(parts) != 3 {
			return fmt.Errorf("vector needs 3 components, got %d", len(parts))
		}
		v.X, v.Y, v.Z = parts[0], parts[1], parts[2]
		return nil
	case yaml.MappingNode:
		type fields VectorSpec
		var f fields
		if err := value.Decode(&f); err != nil {
			return err
		}
		*v = VectorSpec(f)
		return nil
	default:
		return fmt.Errorf("vector must be a [x, y, z] sequence or an {x, y, z} mapping")
	}
}

func (v *VectorSpec) vec() common.Vec3 {
	if v == nil {
		return common.Vec3{}
	}
	return common.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// CurveSpec is a distribution curve sampled along a chain. It accepts either
// a plain number, which becomes a constant curve, or a mapping with a keys
// list:
//
//	damping: 0.2
//	elasticity:
//	  keys:
//	    - {t: 0, value: 0.3}
//	    - {t: 1, value: 0.05}
type CurveSpec struct {
	Constant *float32
	Keys     []KeySpec
}

// KeySpec is one keyframe of a CurveSpec.
type KeySpec struct {
	T     float32 `yaml:"t"`
	Value float32 `yaml:"value"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CurveSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var v float32
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("curve must be a number or a keys mapping: %w", err)
		}
		c.Constant = &v
		return nil
	}
	var m struct {
		Keys []KeySpec `yaml:"keys"`
	}
	if err := value.Decode(&m); err != nil {
		return err
	}
	if len(m.Keys) == 0 {
		return fmt.Errorf("curve mapping needs at least one key")
	}
	c.Keys = m.Keys
	return nil
}

// Curve converts the spec into a sampler.
//
// Returns:
//   - chain.Curve: the sampler, or nil when the spec is absent
func (c *CurveSpec) Curve() chain.Curve {
	if c == nil {
		return nil
	}
	if len(c.Keys) > 0 {
		keys := make([]chain.Keyframe, len(c.Keys))
		for i, k := range c.Keys {
			keys[i] = chain.Keyframe{T: k.T, Value: k.Value}
		}
		return chain.Keyframes(keys...)
	}
	if c.Constant != nil {
		return chain.Constant(*c.Constant)
	}
	return nil
}

// ColliderSpec is one collision primitive. Type selects the shape and decides
// which of the remaining fields are read:
//
//	sphere:  center, radius
//	capsule: from, to, radius
//	box:     center, half_extents
//	plane:   point, normal
type ColliderSpec struct {
	Type        string      `yaml:"type"`
	Center      *VectorSpec `yaml:"center"`
	Radius      float32     `yaml:"radius"`
	From        *VectorSpec `yaml:"from"`
	To          *VectorSpec `yaml:"to"`
	HalfExtents *VectorSpec `yaml:"half_extents"`
	Point       *VectorSpec `yaml:"point"`
	Normal      *VectorSpec `yaml:"normal"`
}

func (c ColliderSpec) build() (chain.Collider, error) {
	switch strings.ToLower(c.Type) {
	case "sphere":
		return chain.NewSphere(c.Center.vec(), c.Radius), nil
	case "capsule":
		return chain.NewCapsule(c.From.vec(), c.To.vec(), c.Radius), nil
	case "box":
		return chain.NewBox(c.Center.vec(), c.HalfExtents.vec()), nil
	case "plane":
		return chain.NewPlane(c.Point.vec(), c.Normal.vec()), nil
	default:
		return chain.Collider{}, fmt.Errorf("unknown collider type %q", c.Type)
	}
}

func parseFreezeAxis(s string) (chain.FreezeAxis, error) {
	switch strings.ToLower(s) {
	case "none":
		return chain.FreezeNone, nil
	case "x":
		return chain.FreezeX, nil
	case "y":
		return chain.FreezeY, nil
	case "z":
		return chain.FreezeZ, nil
	default:
		return chain.FreezeNone, fmt.Errorf("unknown freeze axis %q", s)
	}
}

func parseUpdateMode(s string) (simulator.UpdateMode, error) {
	switch strings.ToLower(s) {
	case "normal":
		return simulator.ModeNormal, nil
	case "fixed":
		return simulator.ModeFixedUpdate, nil
	case "undilated":
		return simulator.ModeUndilated, nil
	case "default":
		return simulator.ModeDefault, nil
	default:
		return simulator.ModeDefault, fmt.Errorf("unknown update mode %q", s)
	}
}
