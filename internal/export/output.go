package export

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveOutputPath returns a path under dir that does not collide with an
// existing file. The first choice is stem.ext; on collision a " - dupN"
// suffix is inserted before the extension, counting up until a free name is
// found. Re-exporting a session therefore never overwrites an earlier
// render.
func resolveOutputPath(dir, stem, ext string) (string, error) {
	candidate := filepath.Join(dir, stem+"."+ext)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking output path %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s - dup%d.%s", stem, n, ext))
	}
}
