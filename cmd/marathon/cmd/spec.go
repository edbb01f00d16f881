package cmd

import (
	"os"

	"sigs.k8s.io/yaml"

	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// specFile is the YAML shape `marathon deploy -f` reads: a flat list of
// apps and pods to put into the root group. runspec.RunSpec's identifier
// and version-strategy fields aren't exported to YAML directly (PathId's
// fields are private and VersionInfo is planner-internal bookkeeping), so
// this is a deliberately small operator-facing surface rather than a
// straight marshalling of the internal model.
type specFile struct {
	Apps []appSpec `json:"apps,omitempty"`
	Pods []podSpec `json:"pods,omitempty"`
}

type appSpec struct {
	Id           string            `json:"id"`
	Role         string            `json:"role,omitempty"`
	Instances    int               `json:"instances"`
	Command      string            `json:"command,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Container    string            `json:"container,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Upgrade      *upgradeSpec      `json:"upgrade,omitempty"`
}

type podSpec struct {
	Id           string             `json:"id"`
	Role         string             `json:"role,omitempty"`
	Instances    int                `json:"instances"`
	Containers   []podContainerSpec `json:"containers,omitempty"`
	Dependencies []string           `json:"dependencies,omitempty"`
	Upgrade      *upgradeSpec       `json:"upgrade,omitempty"`
}

type podContainerSpec struct {
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Command []string `json:"command,omitempty"`
}

type upgradeSpec struct {
	MinimumHealthCapacity float64 `json:"minimumHealthCapacity"`
	MaximumOverCapacity   float64 `json:"maximumOverCapacity"`
}

func loadSpecFile(path string) (*specFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf specFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, err
	}
	return &sf, nil
}

// changes converts sf into the runspec.Change list runspec.Update expects,
// all resolved against the root ("/") since every id in a specFile is
// absolute.
func (sf *specFile) changes() ([]runspec.Change, error) {
	var out []runspec.Change
	for _, a := range sf.Apps {
		id, err := pathid.Parse(a.Id)
		if err != nil {
			return nil, err
		}
		deps, err := parsePathIds(a.Dependencies)
		if err != nil {
			return nil, err
		}
		out = append(out, runspec.Change{
			Kind: runspec.ChangePutApp,
			Id:   id,
			Spec: runspec.RunSpec{
				Kind: runspec.KindApp, Id: id, Role: a.Role, Instances: a.Instances,
				Command: a.Command, Args: a.Args, Container: a.Container, Env: a.Env,
				Dependencies: deps, Upgrade: a.Upgrade.toStrategy(),
			},
		})
	}
	for _, p := range sf.Pods {
		id, err := pathid.Parse(p.Id)
		if err != nil {
			return nil, err
		}
		deps, err := parsePathIds(p.Dependencies)
		if err != nil {
			return nil, err
		}
		containers := make([]runspec.PodContainer, len(p.Containers))
		for i, c := range p.Containers {
			containers[i] = runspec.PodContainer{Name: c.Name, Image: c.Image, Command: c.Command}
		}
		out = append(out, runspec.Change{
			Kind: runspec.ChangePutPod,
			Id:   id,
			Spec: runspec.RunSpec{
				Kind: runspec.KindPod, Id: id, Role: p.Role, Instances: p.Instances,
				Containers: containers, Dependencies: deps, Upgrade: p.Upgrade.toStrategy(),
			},
		})
	}
	return out, nil
}

func parsePathIds(raw []string) ([]pathid.PathId, error) {
	out := make([]pathid.PathId, len(raw))
	for i, r := range raw {
		id, err := pathid.Parse(r)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func (u *upgradeSpec) toStrategy() runspec.UpgradeStrategy {
	if u == nil {
		return runspec.UpgradeStrategy{}
	}
	return runspec.UpgradeStrategy{MinimumHealthCapacity: u.MinimumHealthCapacity, MaximumOverCapacity: u.MaximumOverCapacity}
}
