package templates

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"apkdeploy/internal/release"
)

// 遠端指令模板
// 1. Chmod: 調整公開 APK 權限
// 2. Copy: 由暫存路徑以 sudo 複製到公開路徑
// 3. List: 列出遠端檔案供人工確認
// 4. Upsert / Deactivate: 透過 artisan tinker 更新 app_versions

const ChmodTmpl = `{{if .Sudo}}sudo {{end}}chmod {{.Mode}} {{quote .PublicPath}}`

const CopyTmpl = `sudo cp {{quote .StagingPath}} {{quote .PublicPath}}`

const ListTmpl = `ls -la {{quote .PublicPath}}`

const TinkerTmpl = `cd {{quote .AppDir}} && php artisan tinker --execute={{quote .Script}}`

// UpsertScriptTmpl creates or updates the version row keyed on platform + client_id.
const UpsertScriptTmpl = `\{{.Model}}::updateOrCreate(
    ['platform' => {{php .Release.Platform}}, 'client_id' => {{php .Release.ClientID}}],
    [
        'version' => {{php .Release.Version}},
        'build_number' => {{.Release.Build}},
        'download_url' => {{php .Release.DownloadURL}},
        'changelog' => {{php .Release.Changelog}},
        'file_size' => {{.Release.FileSize}},
        'is_active' => {{.Release.IsActive}},
        'force_update' => {{.Release.ForceUpdate}},
        'released_at' => {{with .Release.Timestamp}}{{php .}}{{else}}now(){{end}}
    ]
);
echo 'Version ' . {{php .Release.Version}} . ' (build {{.Release.Build}}) registered';
`

// DeactivateScriptTmpl turns off every other version of the same platform/client
// and prints the one left active.
const DeactivateScriptTmpl = `\{{.Model}}::where('platform', {{php .Release.Platform}})->where('client_id', {{php .Release.ClientID}})->where('version', '!=', {{php .Release.Version}})->update(['is_active' => false]);
$v = \{{.Model}}::where('platform', {{php .Release.Platform}})->where('client_id', {{php .Release.ClientID}})->where('is_active', true)->orderByDesc('build_number')->first();
echo $v ? 'Active version: ' . $v->version . ' (build ' . $v->build_number . ')' : 'No active version';
`

// DefaultModel is the Eloquent model holding app versions.
const DefaultModel = `App\Models\AppVersion`

var (
	modeRe  = regexp.MustCompile(`^[0-7]{3,4}$`)
	modelRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\\[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Vars 定義渲染模板所需的變數
type Vars struct {
	AppDir      string // Laravel application root on the server
	PublicPath  string // web-served APK path
	StagingPath string // writable path for uploads that need a privileged copy
	Mode        string // chmod mode, e.g. "644"
	Model       string // Eloquent model class, without leading backslash
	Sudo        bool
	Script      string // PHP snippet for TinkerTmpl
	Release     release.Release
}

// Validate checks the values that are interpolated without quoting.
func (v Vars) Validate() error {
	if v.Mode != "" && !modeRe.MatchString(v.Mode) {
		return fmt.Errorf("invalid file mode %q", v.Mode)
	}
	if v.Model != "" && !modelRe.MatchString(v.Model) {
		return fmt.Errorf("invalid model class %q", v.Model)
	}
	return nil
}

var funcs = template.FuncMap{
	"quote": ShellQuote,
	"php":   PHPString,
}

// Render 輔助函式
func Render(name, tmplStr string, v Vars) (string, error) {
	v.Model = strings.TrimPrefix(v.Model, `\`)
	if v.Model == "" {
		v.Model = DefaultModel
	}
	if err := v.Validate(); err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Funcs(funcs).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Tinker renders a PHP script template and wraps it into an artisan tinker call.
func Tinker(name, scriptTmpl string, v Vars) (string, error) {
	script, err := Render(name, scriptTmpl, v)
	if err != nil {
		return "", err
	}
	v.Script = script
	return Render(name+"-tinker", TinkerTmpl, v)
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PHPString renders s as a single-quoted PHP literal.
func PHPString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
