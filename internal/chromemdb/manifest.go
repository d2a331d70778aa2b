package chromemdb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

const manifestFile = "manifest.txt"

// readManifest returns the source file names recorded for a subject, in upload order.
func readManifest(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return lo.Uniq(names), nil
}

// manifestName is name as it is stored: one line, no line breaks.
func manifestName(name string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(name)
}

// appendManifest records name unless it is already listed. It returns the name as written and
// reports whether a line was written.
func appendManifest(dir, name string, existing []string) (string, bool, error) {
	name = manifestName(name)
	if strings.TrimSpace(name) == "" || lo.Contains(existing, name) {
		return name, false, nil
	}
	f, err := os.OpenFile(filepath.Join(dir, manifestFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return name, false, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(name + "\n"); err != nil {
		return name, false, fmt.Errorf("failed to append manifest: %w", err)
	}
	return name, true, nil
}
