package builder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// OutputPath returns where `flutter build apk --release` leaves the artifact
func OutputPath(projectDir string) string {
	return filepath.Join(projectDir, "build", "app", "outputs", "flutter-apk", "app-release.apk")
}

// BuildCommand prepares the release build of a Flutter project
// projectDir: directory holding pubspec.yaml
// extraArgs: passed through, e.g. --build-name / --build-number
func BuildCommand(projectDir string, extraArgs ...string) *exec.Cmd {
	args := append([]string{"build", "apk", "--release"}, extraArgs...)
	cmd := exec.Command("flutter", args...)
	cmd.Dir = projectDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// BuildAPK runs the release build and returns the artifact path
func BuildAPK(projectDir string, extraArgs ...string) (string, error) {
	if _, err := os.Stat(filepath.Join(projectDir, "pubspec.yaml")); err != nil {
		return "", fmt.Errorf("%s is not a Flutter project: %w", projectDir, err)
	}

	cmd := BuildCommand(projectDir, extraArgs...)
	fmt.Printf("Building APK: %s (in %s)\n", cmd.String(), projectDir)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("flutter build failed: %w", err)
	}

	out := OutputPath(projectDir)
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("build finished but %s is missing: %w", out, err)
	}
	return out, nil
}

// VersionArgs maps a release version/build to flutter's override flags
func VersionArgs(version string, build int) []string {
	var args []string
	if version != "" {
		args = append(args, "--build-name="+version)
	}
	if build > 0 {
		args = append(args, fmt.Sprintf("--build-number=%d", build))
	}
	return args
}
