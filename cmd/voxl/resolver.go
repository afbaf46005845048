package main

import (
	"os"
	"path/filepath"
)

// fsResolver is cmd/voxl's pkg/vm.ModuleResolver: `use "p"` tries the
// file p, then p.voxl, relative to workDir, then relative to each entry of
// SearchPath, matching §6's "given a string path and a working
// directory, return the file contents, or indicate a missing file."
type fsResolver struct {
	SearchPath []string
}

func (r *fsResolver) Resolve(path, workDir string) (string, string, bool) {
	candidates := make([]string, 0, len(r.SearchPath)+1)
	candidates = append(candidates, filepath.Join(workDir, path))
	for _, dir := range r.SearchPath {
		candidates = append(candidates, filepath.Join(dir, path))
	}
	for _, c := range candidates {
		for _, name := range []string{c, c + ".voxl"} {
			data, err := os.ReadFile(name)
			if err == nil {
				return string(data), name, true
			}
		}
	}
	return "", "", false
}
