package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-chain/engine/skeleton"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct{}

// gltfImporter defines the interface for orchestrating a full glTF/GLB import.
// It combines the parser and the extractors to produce a complete Rig.
type gltfImporter interface {
	// Import loads a glTF/GLB file and extracts the skeleton and animations into a Rig.
	//
	// Parameters:
	//   - path: the file path to the glTF or GLB file
	//
	// Returns:
	//   - *Rig: the fully populated rig
	//   - error: error if import fails
	Import(path string) (*Rig, error)

	// ImportReader loads a glTF document from a reader and extracts a Rig.
	// The reader should provide a complete glTF JSON or GLB binary stream.
	//
	// Parameters:
	//   - r: the reader providing glTF/GLB data
	//   - isGLB: true if the reader provides GLB binary data, false for glTF JSON
	//
	// Returns:
	//   - *Rig: the fully populated rig
	//   - error: error if import fails
	ImportReader(r io.Reader, isGLB bool) (*Rig, error)

	// ImportSkeletonOnly loads a glTF/GLB file and extracts only the skeleton.
	// Animation extraction is skipped for faster loading when only the bone
	// hierarchy is needed.
	//
	// Parameters:
	//   - path: the file path to the glTF or GLB file
	//
	// Returns:
	//   - *Rig: the rig with skeleton only
	//   - error: error if import fails
	ImportSkeletonOnly(path string) (*Rig, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
//
// Returns:
//   - gltfImporter: the importer
func newGLTFImporter() gltfImporter {
	return &gltfImporterImpl{}
}

func (imp *gltfImporterImpl) Import(path string) (*Rig, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return imp.importFromParser(parser, path, true)
}

func (imp *gltfImporterImpl) ImportReader(r io.Reader, isGLB bool) (*Rig, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r, isGLB); err != nil {
		return nil, fmt.Errorf("failed to parse from reader: %w", err)
	}

	return imp.importFromParser(parser, "", true)
}

func (imp *gltfImporterImpl) ImportSkeletonOnly(path string) (*Rig, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return imp.importFromParser(parser, path, false)
}

// importFromParser builds a Rig from a parser that has already loaded a document.
//
// The skeleton comes from the first skin when the document has one; most rigs
// carry a single skin. Documents without skins, common for chain rigs exported
// as bare transform trees, fall back to the scene node hierarchy.
//
// Parameters:
//   - parser: the glTF parser that has already loaded a document
//   - fallbackPath: optional file path used as a fallback for rig naming
//   - withAnimations: false skips animation extraction
func (imp *gltfImporterImpl) importFromParser(parser gltfParser, fallbackPath string, withAnimations bool) (*Rig, error) {
	doc := parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document after parsing")
	}

	skeletonExtractor := newGLTFSkeletonExtractor(parser)

	var skel *skeleton.Skeleton
	var nodeToBone map[int]int32
	var err error

	fromSkin := len(doc.Skins) > 0
	if fromSkin {
		skel, nodeToBone, err = skeletonExtractor.ExtractSkinSkeleton(0)
	} else {
		skel, nodeToBone, err = skeletonExtractor.ExtractSceneSkeleton()
	}
	if err != nil {
		return nil, fmt.Errorf("skeleton extraction failed: %w", err)
	}

	var animations []*Animation
	if withAnimations && len(doc.Animations) > 0 {
		animationExtractor := newGLTFAnimationExtractor(parser)
		if fromSkin {
			// Skin-scoped extraction skips clips that only animate nodes
			// outside the skeleton.
			animations, err = animationExtractor.ExtractAnimationsForSkin(0, nodeToBone)
		} else {
			animations, err = animationExtractor.ExtractAllAnimations(nodeToBone)
		}
		if err != nil {
			return nil, fmt.Errorf("animation extraction failed: %w", err)
		}
	}

	return &Rig{
		Name:       gltfExtractRigName(doc, fallbackPath),
		Skeleton:   skel,
		Animations: animations,
	}, nil
}

// --- Helper Functions ---

// unnamedRigName marks rigs whose document and source path carry no usable name.
const unnamedRigName = "unnamed_rig"

// gltfExtractRigName derives a rig name from the document's default scene or a
// file path fallback.
func gltfExtractRigName(doc *gltfDocument, fallbackPath string) string {
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		if name := doc.Scenes[*doc.Scene].Name; name != "" {
			return name
		}
	}

	if fallbackPath != "" {
		base := filepath.Base(fallbackPath)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}

	return unnamedRigName
}
