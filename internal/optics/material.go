package optics

import (
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultMaterial fills the space behind a surface when none is named.
const DefaultMaterial = "Air"

//go:embed glass.yaml
var glassYAML []byte

type glassEntry struct {
	Name    string    `yaml:"name"`
	Aliases []string  `yaml:"aliases"`
	B       []float64 `yaml:"b"`
	C       []float64 `yaml:"c"`
}

type glassFile struct {
	Glasses []glassEntry `yaml:"glasses"`
}

var (
	catalogOnce sync.Once
	catalog     map[string]glassEntry
	catalogErr  error
)

func loadCatalog() (map[string]glassEntry, error) {
	catalogOnce.Do(func() {
		var f glassFile
		if err := yaml.Unmarshal(glassYAML, &f); err != nil {
			catalogErr = fmt.Errorf("parse glass catalog: %w", err)
			return
		}

		catalog = make(map[string]glassEntry, len(f.Glasses))
		for _, g := range f.Glasses {
			if len(g.B) != 3 || len(g.C) != 3 {
				catalogErr = fmt.Errorf("glass %s: expected 3 Sellmeier terms", g.Name)
				return
			}
			catalog[materialKey(g.Name)] = g
			for _, a := range g.Aliases {
				catalog[materialKey(a)] = g
			}
		}
	})
	return catalog, catalogErr
}

func materialKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Material is the medium that follows a surface.
type Material struct {
	Name string

	ideal     bool
	index     float64
	sellmeier glassEntry
}

// LookupMaterial resolves a material name. It accepts "Air", a catalog glass
// name (case-insensitive) or a constant refractive index such as "1.5".
func LookupMaterial(name string) (Material, error) {
	key := materialKey(name)
	if key == "" {
		return Material{}, fmt.Errorf("%w: empty name", ErrUnknownMaterial)
	}

	if key == "AIR" {
		return Material{Name: DefaultMaterial, ideal: true, index: 1}, nil
	}

	if n, err := strconv.ParseFloat(key, 64); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 1 {
			return Material{}, fmt.Errorf("%w: refractive index %q must be a finite value >= 1", ErrUnknownMaterial, name)
		}
		return Material{Name: name, ideal: true, index: n}, nil
	}

	glasses, err := loadCatalog()
	if err != nil {
		return Material{}, err
	}

	g, ok := glasses[key]
	if !ok {
		return Material{}, fmt.Errorf("%w: %q", ErrUnknownMaterial, name)
	}
	return Material{Name: g.Name, sellmeier: g}, nil
}

// IsAir reports whether the material has unit index.
func (m Material) IsAir() bool {
	return m.ideal && m.index == 1
}

// N returns the refractive index at the given wavelength in micrometres.
func (m Material) N(wavelength float64) float64 {
	if m.ideal {
		return m.index
	}

	l2 := wavelength * wavelength
	n2 := 1.0
	for i := range 3 {
		n2 += m.sellmeier.B[i] * l2 / (l2 - m.sellmeier.C[i])
	}
	return math.Sqrt(n2)
}
