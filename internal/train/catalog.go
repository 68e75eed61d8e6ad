package train

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const CatalogSchemaV1 = "uam.catalog.v1"

// FamilySpec declares one model family to try: a display name, the
// fitter kind behind it, and the hyperparameter grid to sweep.
type FamilySpec struct {
	Name   string `yaml:"name"`
	Fitter string `yaml:"fitter"`
	Grid   Grid   `yaml:"grid,omitempty"`
}

// Catalog is the full family lineup per task, loadable from YAML so the
// lineup can change without a rebuild.
type Catalog struct {
	Schema         string       `yaml:"schema"`
	Classification []FamilySpec `yaml:"classification"`
	Regression     []FamilySpec `yaml:"regression"`
}

// DefaultCatalog is the built-in lineup used when no catalog file is
// configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Schema: CatalogSchemaV1,
		Classification: []FamilySpec{
			{
				Name:   "Logistic Regression",
				Fitter: FitterLogisticRegression,
				Grid:   Grid{"C": {0.1, 1.0, 10.0}},
			},
			{
				Name:   "K-Nearest Neighbors",
				Fitter: FitterKNN,
				Grid: Grid{
					"n_neighbors": {3, 5, 7},
					"weights":     {"uniform", "distance"},
				},
			},
			{
				Name:   "Nearest Centroid",
				Fitter: FitterNearestCentroid,
			},
			{
				Name:   "Baseline",
				Fitter: FitterBaseline,
			},
		},
		Regression: []FamilySpec{
			{
				Name:   "Linear Regression",
				Fitter: FitterLinearRegression,
			},
			{
				Name:   "Ridge",
				Fitter: FitterRidge,
				Grid:   Grid{"lambda": {0.1, 1.0, 10.0}},
			},
			{
				Name:   "K-Nearest Neighbors",
				Fitter: FitterKNN,
				Grid: Grid{
					"n_neighbors": {3, 5, 7},
					"weights":     {"uniform", "distance"},
				},
			},
			{
				Name:   "Baseline",
				Fitter: FitterBaseline,
			},
		},
	}
}

// ParseCatalog decodes and validates a YAML catalog. Unknown fields are
// rejected so typos fail loudly instead of silently shrinking a grid.
func ParseCatalog(raw []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func (c *Catalog) Validate() error {
	if c == nil {
		return errors.New("catalog is nil")
	}
	if strings.TrimSpace(c.Schema) != CatalogSchemaV1 {
		return fmt.Errorf("unsupported catalog schema %q", c.Schema)
	}
	if len(c.Classification) == 0 {
		return errors.New("classification families are required")
	}
	if len(c.Regression) == 0 {
		return errors.New("regression families are required")
	}
	if err := validateFamilies("classification", c.Classification); err != nil {
		return err
	}
	return validateFamilies("regression", c.Regression)
}

func validateFamilies(section string, families []FamilySpec) error {
	seen := make(map[string]struct{}, len(families))
	for i, family := range families {
		name := strings.TrimSpace(family.Name)
		if name == "" {
			return fmt.Errorf("%s family %d has no name", section, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s family %q is duplicated", section, name)
		}
		seen[name] = struct{}{}
		if !KnownFitter(family.Fitter) {
			return fmt.Errorf("%s family %q references unknown fitter %q", section, name, family.Fitter)
		}
	}
	return nil
}

// FamiliesFor returns the lineup for a task in catalog order.
func (c *Catalog) FamiliesFor(task TaskType) []FamilySpec {
	if task.Classification() {
		return c.Classification
	}
	return c.Regression
}
