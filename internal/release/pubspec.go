package release

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type pubspec struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ParsePubspec reads "version: 2.6.0+19" from a Flutter pubspec.yaml.
// The part after '+' is the Android versionCode (build number).
func ParsePubspec(data []byte) (string, int, error) {
	var p pubspec
	if err := yaml.Unmarshal(data, &p); err != nil {
		return "", 0, fmt.Errorf("failed to parse pubspec: %v", err)
	}
	if p.Version == "" {
		return "", 0, fmt.Errorf("pubspec has no version")
	}

	name, code, ok := strings.Cut(p.Version, "+")
	if !ok {
		return "", 0, fmt.Errorf("pubspec version %q has no build number (+N)", p.Version)
	}
	build, err := strconv.Atoi(code)
	if err != nil || build <= 0 {
		return "", 0, fmt.Errorf("pubspec version %q has invalid build number", p.Version)
	}
	if !versionRe.MatchString(name) {
		return "", 0, fmt.Errorf("pubspec version %q is not MAJOR.MINOR.PATCH", name)
	}
	return name, build, nil
}
