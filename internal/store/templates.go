package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"shipyard/internal/api"
	"shipyard/internal/template"
	"shipyard/pkg/logging"
)

// TemplateStore serves template sets from the templates shipped with the
// binary and from a directory laid out as <dir>/<componentType>/<version>/*.yaml.
// Each file holds one api.TemplateDocument.
type TemplateStore struct {
	dir     string
	builtin []api.TemplateDocument
}

// TemplateStoreOption configures a TemplateStore.
type TemplateStoreOption func(*TemplateStore)

// WithTemplateDirectory adds a directory of versioned template sets.
func WithTemplateDirectory(dir string) TemplateStoreOption {
	return func(s *TemplateStore) { s.dir = dir }
}

// WithoutBuiltinTemplates drops the templates shipped with the binary.
func WithoutBuiltinTemplates() TemplateStoreOption {
	return func(s *TemplateStore) { s.builtin = nil }
}

// NewTemplateStore creates a template store.
func NewTemplateStore(opts ...TemplateStoreOption) *TemplateStore {
	s := &TemplateStore{builtin: template.BuiltinTemplates()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TemplatesFor implements api.TemplateStore. With an empty version the
// highest semantic version found in the directory wins; the builtin set is
// used when the directory has none for the component type.
func (s *TemplateStore) TemplatesFor(_ context.Context, componentType api.ComponentType, version string) ([]api.TemplateDocument, error) {
	if version == "" {
		latest, err := s.latestVersion(componentType)
		if err != nil {
			return nil, err
		}
		version = latest
	}
	if version == "" {
		return nil, api.NewNotFoundError("template set", string(componentType))
	}

	if version == template.BuiltinVersion {
		docs := s.builtinFor(componentType)
		if len(docs) == 0 {
			return nil, api.NewNotFoundError("template set", setName(componentType, version))
		}
		return docs, nil
	}

	docs, err := s.loadSet(componentType, version)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, api.NewNotFoundError("template set", setName(componentType, version))
	}
	return docs, nil
}

// Versions lists the versions available for a component type, newest first.
func (s *TemplateStore) Versions(componentType api.ComponentType) ([]string, error) {
	versions, err := s.directoryVersions(componentType)
	if err != nil {
		return nil, err
	}
	sortVersions(versions)
	if len(s.builtinFor(componentType)) > 0 {
		versions = append(versions, template.BuiltinVersion)
	}
	return versions, nil
}

func (s *TemplateStore) latestVersion(componentType api.ComponentType) (string, error) {
	versions, err := s.directoryVersions(componentType)
	if err != nil {
		return "", err
	}
	if len(versions) > 0 {
		sortVersions(versions)
		return versions[0], nil
	}
	if len(s.builtinFor(componentType)) > 0 {
		return template.BuiltinVersion, nil
	}
	return "", nil
}

func (s *TemplateStore) builtinFor(componentType api.ComponentType) []api.TemplateDocument {
	var out []api.TemplateDocument
	for _, doc := range s.builtin {
		if doc.ComponentType == componentType {
			out = append(out, doc)
		}
	}
	return out
}

func (s *TemplateStore) directoryVersions(componentType api.ComponentType) ([]string, error) {
	if s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, string(componentType)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates of %s: %w", componentType, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

func (s *TemplateStore) loadSet(componentType api.ComponentType, version string) ([]api.TemplateDocument, error) {
	if s.dir == "" {
		return nil, nil
	}
	setDir := filepath.Join(s.dir, string(componentType), version)
	files, err := os.ReadDir(setDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template set %s: %w", setName(componentType, version), err)
	}

	var docs []api.TemplateDocument
	for _, f := range files {
		ext := filepath.Ext(f.Name())
		if f.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(setDir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", f.Name(), err)
		}
		var doc api.TemplateDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse template %s in %s: %w", f.Name(), setName(componentType, version), err)
		}
		if doc.Name == "" {
			doc.Name = strings.TrimSuffix(f.Name(), ext)
		}
		if doc.ComponentType == "" {
			doc.ComponentType = componentType
		}
		if doc.ComponentType != componentType {
			logging.Warn(api.SubsystemStore, "Template %s declares component type %s but lives under %s, skipping", doc.Name, doc.ComponentType, componentType)
			continue
		}
		doc.Version = version
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].RenderOrder != docs[j].RenderOrder {
			return docs[i].RenderOrder < docs[j].RenderOrder
		}
		return docs[i].Name < docs[j].Name
	})
	logging.Debug(api.SubsystemStore, "Loaded %d templates for %s", len(docs), setName(componentType, version))
	return docs, nil
}

// sortVersions orders versions newest first. Semantic versions sort above
// anything else; the rest fall back to reverse lexical order.
func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, errI := semver.NewVersion(versions[i])
		vj, errJ := semver.NewVersion(versions[j])
		switch {
		case errI == nil && errJ == nil:
			return vi.GreaterThan(vj)
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return versions[i] > versions[j]
		}
	})
}

func setName(componentType api.ComponentType, version string) string {
	return string(componentType) + "@" + version
}

var _ api.TemplateStore = (*TemplateStore)(nil)
