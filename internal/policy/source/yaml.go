// Package source loads the policy documents embedded into credentials.
package source

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	strandmodels "strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

type file struct {
	Documents []strandmodels.PolicyDocument `yaml:"documents"`
}

// Documents is an in-memory policy source.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]*strandmodels.PolicyDocument
}

// Parse reads a YAML file of the form
//
//	documents:
//	  - id: standard
//	    rules: [channel:web]
//	    capabilities: [login]
//	    metadata: {tier: gold}
func Parse(data []byte) (*Documents, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "invalid policy documents")
	}
	d := &Documents{docs: make(map[string]*strandmodels.PolicyDocument, len(f.Documents))}
	for i := range f.Documents {
		doc := f.Documents[i]
		if doc.ID == "" {
			return nil, dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("policy document %d has no id", i))
		}
		if _, dup := d.docs[doc.ID]; dup {
			return nil, dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("duplicate policy document %q", doc.ID))
		}
		d.docs[doc.ID] = &doc
	}
	return d, nil
}

// Load parses the YAML file at path.
func Load(path string) (*Documents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "read policy documents")
	}
	return Parse(data)
}

// New returns a source holding docs.
func New(docs ...*strandmodels.PolicyDocument) *Documents {
	d := &Documents{docs: make(map[string]*strandmodels.PolicyDocument, len(docs))}
	for _, doc := range docs {
		d.docs[doc.ID] = doc
	}
	return d
}

// Get returns sentinel.ErrNotFound for unknown ids.
func (d *Documents) Get(_ context.Context, id string) (*strandmodels.PolicyDocument, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc, nil
}

// Put adds or replaces a document.
func (d *Documents) Put(doc *strandmodels.PolicyDocument) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[doc.ID] = doc
}
