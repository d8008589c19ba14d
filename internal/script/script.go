// Package script renders the AutoCAD command script that draws the search
// circle and imports each layer artifact.
package script

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/place-engineering/sitelayers/internal/model"
)

const (
	// TopoHook assigns elevations after the topography import.
	TopoHook = `(load "apply_topo_elevation.lsp") AssignTopoElevation`
	// LinetypeHook is always the last line of a script.
	LinetypeHook = `(load "enable_linetype_generation.lsp") EnableLinetypeGeneration`
)

// Options are the fixed parameters of a script.
type Options struct {
	Radius float64
	// ImportProfile is the MAPIMPORT profile (.ipf) applied to every layer.
	ImportProfile string
}

// Generate renders the script for a center point and the artifacts in
// order. A topography artifact, if present, is imported first and followed
// by the elevation hook. Output is deterministic for the same inputs.
func Generate(x, y float64, artifacts []model.LayerArtifact, opts Options) string {
	center := coord(x) + "," + coord(y)
	lines := []string{
		"CIRCLE", center, coord(opts.Radius),
		"ZOOM", "C", center, coord(2 * opts.Radius),
	}

	topo := -1
	for i, a := range artifacts {
		if a.IsTopography() {
			topo = i
			break
		}
	}
	if topo >= 0 {
		lines = append(lines, importLines(artifacts[topo], opts.ImportProfile)...)
		lines = append(lines, TopoHook)
	}
	for i, a := range artifacts {
		if i == topo {
			continue
		}
		lines = append(lines, importLines(a, opts.ImportProfile)...)
	}
	lines = append(lines, LinetypeHook)
	return strings.Join(lines, "\n") + "\n"
}

func importLines(a model.LayerArtifact, profile string) []string {
	return []string{"-MAPIMPORT", "shp", a.Path, "yes", profile, "proceed"}
}

// WriteFile writes the script to path, replacing any previous file.
func WriteFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "script: create dir for %s", path)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return eris.Wrapf(err, "script: write %s", path)
	}
	return nil
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
