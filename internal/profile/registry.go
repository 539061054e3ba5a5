package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/sitemap"
)

//go:embed data/outlets.yaml
var defaultOutlets []byte

//go:embed data/shared_lists.yaml
var defaultShared []byte

type outletsDocument struct {
	Outlets []Profile `yaml:"outlets"`
}

// Registry holds the profiles keyed by lowercase outlet identifier.
type Registry struct {
	profiles map[string]Profile
	shared   SharedLists
}

// Load reads profiles and shared lists from the given files. An empty path
// selects the built-in data for that document.
func Load(profilesPath, sharedPath string) (*Registry, error) {
	outlets := defaultOutlets
	if profilesPath != "" {
		data, err := os.ReadFile(profilesPath)
		if err != nil {
			return nil, crawler.NewConfigError("profiles.file", fmt.Errorf("read profiles: %w", err))
		}
		outlets = data
	}
	shared := defaultShared
	if sharedPath != "" {
		data, err := os.ReadFile(sharedPath)
		if err != nil {
			return nil, crawler.NewConfigError("profiles.shared_lists_file", fmt.Errorf("read shared lists: %w", err))
		}
		shared = data
	}
	return Parse(outlets, shared)
}

// Parse builds a Registry from YAML documents.
func Parse(outletsData, sharedData []byte) (*Registry, error) {
	var lists SharedLists
	if len(bytes.TrimSpace(sharedData)) > 0 {
		if err := decodeStrict(sharedData, &lists); err != nil {
			return nil, crawler.NewConfigError("shared_lists", err)
		}
	}

	var doc outletsDocument
	if err := decodeStrict(outletsData, &doc); err != nil {
		return nil, crawler.NewConfigError("profiles", err)
	}
	if len(doc.Outlets) == 0 {
		return nil, crawler.NewConfigError("profiles", errors.New("no outlets defined"))
	}

	reg := &Registry{profiles: make(map[string]Profile, len(doc.Outlets)), shared: lists}
	for i, p := range doc.Outlets {
		p = applyDefaults(p)
		if err := p.Validate(); err != nil {
			return nil, crawler.NewConfigError(fmt.Sprintf("profiles[%d] %s", i, p.ID), err)
		}
		if _, dup := reg.profiles[p.ID]; dup {
			return nil, crawler.NewConfigError("profiles", fmt.Errorf("duplicate outlet %q", p.ID))
		}
		if p.SharedLists {
			p.Women = mergeTerms(p.Women, lists.WomenPlayers)
			p.Men = mergeTerms(p.Men, lists.MenPlayers)
			p.ExcludeDisambiguation = mergeTerms(p.ExcludeDisambiguation, lists.ExcludeDisambiguation)
		}
		reg.profiles[p.ID] = p
	}
	return reg, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyDefaults(p Profile) Profile {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	if p.Scope == "" {
		p.Scope = ScopeLexical
	}
	if p.DefaultCategory == "" {
		p.DefaultCategory = DefaultMen
	}
	if p.Root.Mode == "" {
		p.Root.Mode = sitemap.RootDirect
	}
	return p
}

// Get returns a copy of the profile for outlet. Unknown outlets yield a
// *crawler.ConfigError wrapping crawler.ErrUnknownOutlet.
func (r *Registry) Get(outlet string) (Profile, error) {
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(outlet))]
	if !ok {
		return Profile{}, crawler.NewConfigError("outlet", fmt.Errorf("%w: %q", crawler.ErrUnknownOutlet, outlet))
	}
	return p.clone(), nil
}

// IDs lists the registered outlets alphabetically.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shared returns the shared lists the registry was built with.
func (r *Registry) Shared() SharedLists {
	return SharedLists{
		WomenPlayers:          append([]string(nil), r.shared.WomenPlayers...),
		MenPlayers:            append([]string(nil), r.shared.MenPlayers...),
		ExcludeDisambiguation: append([]string(nil), r.shared.ExcludeDisambiguation...),
	}
}
