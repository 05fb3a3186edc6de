package deployer

import (
	"fmt"

	"apkdeploy/internal/config"
	"apkdeploy/internal/templates"
)

// Publish uploads the APK straight to the public path, lists it, fixes its mode,
// optionally registers the release, then deactivates older versions.
func Publish(apk string, vars templates.Vars, register bool) (Plan, error) {
	if vars.PublicPath == "" {
		return Plan{}, fmt.Errorf("publish: app public_path is required")
	}
	if vars.AppDir == "" {
		return Plan{}, fmt.Errorf("publish: app dir is required")
	}
	if vars.Release.Version == "" {
		return Plan{}, fmt.Errorf("publish: release version is required")
	}

	list, err := templates.Render("list", templates.ListTmpl, vars)
	if err != nil {
		return Plan{}, err
	}
	chmod, err := templates.Render("chmod", templates.ChmodTmpl, vars)
	if err != nil {
		return Plan{}, err
	}
	steps := []Step{
		{Name: "Upload APK", Upload: &Upload{Local: apk, Remote: vars.PublicPath, Verify: true}},
		{Name: "List remote file", Run: list},
		{Name: "Fix permissions", Run: chmod},
	}

	if register {
		s, err := upsertStep(vars)
		if err != nil {
			return Plan{}, err
		}
		steps = append(steps, s)
	}

	deactivate, err := templates.Tinker("deactivate", templates.DeactivateScriptTmpl, vars)
	if err != nil {
		return Plan{}, err
	}
	steps = append(steps, Step{Name: "Deactivate old versions", Run: deactivate})

	return Plan{Name: "publish", Steps: steps}, nil
}

// Stage uploads to a staging path the SSH user can write, then copies it to
// the public path and fixes its mode with sudo.
func Stage(apk string, vars templates.Vars, register bool) (Plan, error) {
	if vars.StagingPath == "" || vars.PublicPath == "" {
		return Plan{}, fmt.Errorf("stage: app staging_path and public_path are required")
	}
	vars.Sudo = true

	copyCmd, err := templates.Render("copy", templates.CopyTmpl, vars)
	if err != nil {
		return Plan{}, err
	}
	chmod, err := templates.Render("chmod", templates.ChmodTmpl, vars)
	if err != nil {
		return Plan{}, err
	}
	steps := []Step{
		{Name: "Upload APK to staging", Upload: &Upload{Local: apk, Remote: vars.StagingPath, Verify: true}},
		{Name: "Copy to public path", Run: copyCmd},
		{Name: "Fix permissions", Run: chmod},
	}

	if register {
		s, err := upsertStep(vars)
		if err != nil {
			return Plan{}, err
		}
		steps = append(steps, s)
	}
	return Plan{Name: "stage", Steps: steps}, nil
}

// Register only upserts the version record.
func Register(vars templates.Vars) (Plan, error) {
	s, err := upsertStep(vars)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Name: "register", Steps: []Step{s}}, nil
}

func upsertStep(vars templates.Vars) (Step, error) {
	if vars.AppDir == "" {
		return Step{}, fmt.Errorf("register: app dir is required")
	}
	if err := vars.Release.Validate(); err != nil {
		return Step{}, err
	}
	cmd, err := templates.Tinker("upsert", templates.UpsertScriptTmpl, vars)
	if err != nil {
		return Step{}, err
	}
	name := fmt.Sprintf("Register version %s (build %d)", vars.Release.Version, vars.Release.Build)
	return Step{Name: name, Run: cmd}, nil
}

// Exec runs one caller-supplied command.
func Exec(cmd string) Plan {
	return Plan{Name: "exec", Steps: []Step{{Run: cmd}}}
}

// UploadExec uploads one file and optionally runs a command afterwards.
func UploadExec(local, remote, cmd string) Plan {
	steps := []Step{{Upload: &Upload{Local: local, Remote: remote, Verify: true}}}
	if cmd != "" {
		steps = append(steps, Step{Run: cmd})
	}
	return Plan{Name: "upload", Steps: steps}
}

// Custom turns a flow from the config file into a Plan, rendering each
// path and command with the template variables.
func Custom(name string, steps []config.StepConfig, vars templates.Vars) (Plan, error) {
	plan := Plan{Name: name}
	for i, sc := range steps {
		step := Step{Name: sc.Name}
		var err error
		if sc.Upload != nil {
			u := &Upload{Verify: sc.Upload.Verify}
			if u.Local, err = templates.Render(fmt.Sprintf("%s-%d-local", name, i), sc.Upload.Local, vars); err != nil {
				return Plan{}, fmt.Errorf("flow %s step #%d: %w", name, i, err)
			}
			if u.Remote, err = templates.Render(fmt.Sprintf("%s-%d-remote", name, i), sc.Upload.Remote, vars); err != nil {
				return Plan{}, fmt.Errorf("flow %s step #%d: %w", name, i, err)
			}
			step.Upload = u
		} else {
			if step.Run, err = templates.Render(fmt.Sprintf("%s-%d", name, i), sc.Run, vars); err != nil {
				return Plan{}, fmt.Errorf("flow %s step #%d: %w", name, i, err)
			}
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, plan.Validate()
}
