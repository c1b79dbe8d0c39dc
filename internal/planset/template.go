package planset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Example is the plan set written by init.
var Example = []Plan{
	{ID: 1, Name: "Version 1", Path: "Plans/version1.sqlplan", Description: "Description of version 1", Active: true},
	{ID: 2, Name: "Version 2", Path: "Plans/version2.sqlplan", Description: "Description of version 2", Active: true},
}

func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := json.MarshalIndent(Example, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plan set: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
