package prompts

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Install copies the built-in templates into dir so they can be edited.
// Existing files are left alone unless overwrite is set.
// Returns the paths that were written.
func Install(dir string, overwrite bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(embeddedFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		target := filepath.Join(dir, filepath.FromSlash(path))
		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return nil
			}
		}

		content, err := fs.ReadFile(embeddedFS, path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			return err
		}
		written = append(written, target)
		return nil
	})
	return written, err
}
