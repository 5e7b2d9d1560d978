package bench

import (
	"fmt"
	"os"
	"path/filepath"
)

// Target is a discovered benchmark project.
type Target struct {
	Name string
	Path string
}

// DiscoverTargets scans root for benchmark projects. Projects live exactly
// two directory levels below root (<root>/<group>/<project>) and must contain
// the manifest file. Results are in lexical order, so suite runs are
// deterministic.
func DiscoverTargets(root, manifest string) ([]Target, error) {
	groups, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets root %s: %w", root, err)
	}

	var targets []Target
	for _, group := range groups {
		if !group.IsDir() {
			continue
		}

		groupPath := filepath.Join(root, group.Name())
		entries, err := os.ReadDir(groupPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read target group %s: %w", groupPath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			path := filepath.Join(groupPath, entry.Name())
			if err := VerifyTarget(path, manifest); err != nil {
				continue
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve target path %s: %w", path, err)
			}

			targets = append(targets, Target{
				Name: entry.Name(),
				Path: abs,
			})
		}
	}

	return targets, nil
}

// VerifyTarget checks that path is a directory containing the manifest file.
func VerifyTarget(path, manifest string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("target path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target path %s is not a directory", path)
	}

	manifestPath := filepath.Join(path, manifest)
	info, err = os.Stat(manifestPath)
	if err != nil {
		return fmt.Errorf("target %s has no %s: %w", path, manifest, err)
	}
	if info.IsDir() {
		return fmt.Errorf("target manifest %s is a directory", manifestPath)
	}
	return nil
}
