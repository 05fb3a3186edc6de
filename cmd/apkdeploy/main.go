package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"apkdeploy/internal/config"
	"apkdeploy/internal/deployer"
	"apkdeploy/internal/discover"
	"apkdeploy/internal/proxy"
	"apkdeploy/pkg/sshutil"
)

func main() {
	var g GlobalOptions

	var rootCmd = &cobra.Command{
		Use:           "apkdeploy",
		Short:         "透過 SSH 發布 APK 並登記版本",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.ConfigPath, "config", "c", "", "設定檔路徑 (預設 ./apkdeploy.yaml)")
	pf.StringVar(&g.EnvDir, "env-dir", ".", ".env / .env.local 所在目錄")
	pf.StringVar(&g.Host, "host", "", "覆寫 target.host (SSH alias 或主機)")
	pf.StringVar(&g.Port, "port", "", "覆寫 target.port")
	pf.StringVar(&g.User, "user", "", "覆寫 target.user")
	pf.BoolVar(&g.AskPassword, "ask-password", false, "互動輸入 SSH 密碼")
	pf.BoolVar(&g.DryRun, "dry-run", false, "僅列出步驟，不連線")
	pf.BoolVarP(&g.Verbose, "verbose", "v", false, "Debug 日誌")

	// --- Check Command ---
	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "測試連線與探索遠端環境",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			target, err := sshTarget(cfg, g)
			if err != nil {
				return err
			}
			target = target.Resolve(sshutil.DefaultSSHConfigPath())
			fmt.Printf("1. 連線至 %s@%s ...\n", target.User, target.Addr())

			client := sshutil.NewClient(target)
			if err := client.Connect(); err != nil {
				return err
			}
			defer client.Close()

			fmt.Println("2. 執行遠端探索 (Discovery)...")
			info, err := discover.Probe(client, cfg.App.Dir)
			if err != nil {
				return err
			}

			fmt.Println("------------------------------------------------")
			fmt.Printf("主機名稱 : %s\n", info.Hostname)
			fmt.Printf("硬體架構 : %s\n", info.Arch)
			fmt.Printf("PHP 版本 : %s\n", info.PHPVersion)
			fmt.Printf("artisan  : %v (%s)\n", info.HasArtisan, cfg.App.Dir)
			fmt.Println("------------------------------------------------")
			if cfg.App.Dir != "" && !info.HasArtisan {
				return fmt.Errorf("artisan not found in %s", cfg.App.Dir)
			}
			return nil
		},
	}

	// --- Exec Command ---
	var execCmd = &cobra.Command{
		Use:   "exec <command>...",
		Short: "在遠端執行一個指令",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			return runPlan(g, cfg, deployer.Exec(strings.Join(args, " ")))
		},
	}

	// --- Upload Command ---
	var uploadCmd = &cobra.Command{
		Use:   "upload <local> <remote> [command]",
		Short: "上傳檔案，可選擇之後執行指令",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			after := ""
			if len(args) == 3 {
				after = args[2]
			}
			return runPlan(g, cfg, deployer.UploadExec(args[0], args[1], after))
		},
	}

	// --- Publish / Stage / Register Commands ---
	var (
		ro       ReleaseOptions
		register bool
	)
	var publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "上傳 APK 到公開路徑並修正權限",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			apk, rel, err := resolveRelease(cfg, ro, true, g.DryRun)
			if err != nil {
				return err
			}
			plan, err := deployer.Publish(apk, cfg.TemplateVars(rel), register)
			if err != nil {
				return err
			}
			return runPlan(g, cfg, plan)
		},
	}
	var stageCmd = &cobra.Command{
		Use:   "stage",
		Short: "上傳 APK 到暫存路徑，再以 sudo 複製到公開路徑",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			apk, rel, err := resolveRelease(cfg, ro, true, g.DryRun)
			if err != nil {
				return err
			}
			plan, err := deployer.Stage(apk, cfg.TemplateVars(rel), register)
			if err != nil {
				return err
			}
			return runPlan(g, cfg, plan)
		},
	}
	var registerCmd = &cobra.Command{
		Use:   "register",
		Short: "僅登記版本資料 (php artisan tinker)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			_, rel, err := resolveRelease(cfg, ro, false, g.DryRun)
			if err != nil {
				return err
			}
			plan, err := deployer.Register(cfg.TemplateVars(rel))
			if err != nil {
				return err
			}
			return runPlan(g, cfg, plan)
		},
	}
	for _, c := range []*cobra.Command{publishCmd, stageCmd, registerCmd} {
		f := c.Flags()
		f.StringVar(&ro.Version, "version", "", "版本號 X.Y.Z (預設讀取 pubspec.yaml)")
		f.IntVar(&ro.BuildNumber, "build-number", 0, "Build 號碼")
		f.StringVar(&ro.Changelog, "changelog", "", "更新說明")
		f.BoolVar(&ro.Force, "force-update", false, "強制更新")
		if c != registerCmd {
			f.StringVar(&ro.APK, "apk", "", "本地 APK 路徑 (覆寫 app.apk)")
			f.BoolVar(&ro.Build, "build", false, "先執行 flutter build apk --release")
			f.BoolVar(&register, "register", false, "上傳後登記版本")
		}
	}

	// --- Run Command (custom flows) ---
	var runCmd = &cobra.Command{
		Use:   "run <flow>",
		Short: "執行設定檔中的自訂流程",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			steps, ok := cfg.Flows[args[0]]
			if !ok {
				return fmt.Errorf("unknown flow %q (available: %s)", args[0], strings.Join(flowNames(cfg), ", "))
			}
			_, rel, err := resolveRelease(cfg, ro, false, g.DryRun)
			if err != nil {
				return err
			}
			plan, err := deployer.Custom(args[0], steps, cfg.TemplateVars(rel))
			if err != nil {
				return err
			}
			return runPlan(g, cfg, plan)
		},
	}
	runCmd.Flags().StringVar(&ro.Version, "version", "", "版本號 X.Y.Z")
	runCmd.Flags().IntVar(&ro.BuildNumber, "build-number", 0, "Build 號碼")

	// --- Proxy Command (development) ---
	var (
		proxyListen string
		proxyTarget string
	)
	var proxyCmd = &cobra.Command{
		Use:   "proxy",
		Short: "開發用 HTTP 反向代理，轉發到 web 伺服器",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := proxyTarget
			if raw == "" {
				cfg, err := loadConfig(g)
				if err != nil {
					return err
				}
				t, err := cfg.SSHTarget()
				if err != nil {
					return err
				}
				t = t.Resolve(sshutil.DefaultSSHConfigPath())
				raw = "http://" + t.Host + ":80"
			}
			target, err := proxy.ParseTarget(raw)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return proxy.ListenAndServe(ctx, proxyListen, target)
		},
	}
	proxyCmd.Flags().StringVar(&proxyListen, "listen", "0.0.0.0:3000", "監聽位址")
	proxyCmd.Flags().StringVar(&proxyTarget, "target", "", "上游 URL (預設 http://<target.host>:80)")

	rootCmd.AddCommand(checkCmd, execCmd, uploadCmd, publishCmd, stageCmd, registerCmd, runCmd, proxyCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "錯誤: %v\n", err)
		var connErr *sshutil.ConnectionError
		if errors.As(err, &connErr) && connErr.Untrusted() {
			fmt.Fprintf(os.Stderr, "提示: 先以 ssh 連線確認主機金鑰，或設定 target.host_key / %sHOST_KEY\n", config.EnvPrefix)
		}
		os.Exit(1)
	}
}

func flowNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Flows))
	for name := range cfg.Flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
