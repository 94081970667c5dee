// ABOUTME: Reads a SmartREST template file: version line followed by template lines.
// ABOUTME: The version is sent as X-Id during integration, the body as the template definition.

package smartrest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyTemplate is returned when a template file has no version line.
var ErrEmptyTemplate = errors.New("template has no version")

// ReadTemplate loads the template at path. Blank lines and lines starting
// with '#' are ignored.
func ReadTemplate(path string) (version, content string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("opening template: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if version == "" {
			version = line
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("reading template: %w", err)
	}
	if version == "" {
		return "", "", ErrEmptyTemplate
	}

	return version, strings.Join(lines, "\n"), nil
}
