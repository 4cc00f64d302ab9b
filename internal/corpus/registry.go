package corpus

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gostt-bench/internal/errs"
)

// Registry indexes corpus descriptors by id. It is built once at startup and
// read-only afterwards.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry validates descs and indexes them. Later descriptors replace
// earlier ones with the same id.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(d Descriptor) error {
	if d.Mode == "" {
		d.Mode = ModeEager
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.byID[d.ID]; !exists {
		r.order = append(r.order, d.ID)
	}
	r.byID[d.ID] = d
	return nil
}

// registryFile is the on-disk layout of a corpora yaml file.
type registryFile struct {
	Corpora []Descriptor `yaml:"corpora"`
}

// LoadFile merges the descriptors from a yaml file into r.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("corpus: reading registry file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errs.Configuration("corpus: parsing registry file %s: %v", path, err)
	}
	for _, d := range f.Corpora {
		if err := r.add(d); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, errs.Configuration("unknown corpus %q", id).WithDetail("known", r.IDs())
	}
	return d, nil
}

// IDs lists registered corpus ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// SortedIDs lists registered corpus ids alphabetically.
func (r *Registry) SortedIDs() []string {
	ids := r.IDs()
	sort.Strings(ids)
	return ids
}
