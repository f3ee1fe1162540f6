package policy

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// Publisher is one trusted-publisher entry: the repository allowed to
// publish a project, and the environment its runs must declare.
type Publisher struct {
	Repository  string `toml:"repository"`
	Project     string `toml:"project"`
	Environment string `toml:"environment"`
}

// Registry maps repositories to the projects they may publish. A qualifying
// release event from a repository without an entry never reaches checkout.
type Registry struct {
	Publishers []Publisher `toml:"publisher"`
}

// LoadRegistry reads a TOML registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read publisher registry", goerr.V("path", path))
	}

	var reg Registry
	if err := toml.Unmarshal(data, &reg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse publisher registry", goerr.V("path", path))
	}

	for _, p := range reg.Publishers {
		if p.Repository == "" || p.Project == "" {
			return nil, goerr.New("publisher entry requires repository and project",
				goerr.V("path", path), goerr.V("entry", p))
		}
	}
	return &reg, nil
}

// Lookup returns the publisher entry for a repository full name.
func (r *Registry) Lookup(repository string) (*Publisher, bool) {
	for i := range r.Publishers {
		if strings.EqualFold(r.Publishers[i].Repository, repository) {
			return &r.Publishers[i], true
		}
	}
	return nil, false
}

// Authorize checks that a repository may publish the given project in the
// given environment.
func (r *Registry) Authorize(repository, project, environment string) error {
	pub, ok := r.Lookup(repository)
	if !ok {
		return goerr.New("repository is not a trusted publisher", goerr.V("repository", repository))
	}
	if !strings.EqualFold(pub.Project, project) {
		return goerr.New("repository is not trusted for project",
			goerr.V("repository", repository), goerr.V("project", project))
	}
	if pub.Environment != "" && pub.Environment != environment {
		return goerr.New("publish environment does not match registry",
			goerr.V("repository", repository),
			goerr.V("want", pub.Environment), goerr.V("got", environment))
	}
	return nil
}
