package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "dev.xeterbot.gateway"
	systemdUnit  = "xeterbot.service"
)

// serviceFile is everything a launchd plist or systemd unit needs.
type serviceFile struct {
	Label   string
	Exec    string
	Config  string
	WorkDir string
	Log     string
	ErrLog  string
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background gateway service",
	}
	cmd.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the gateway as a user service (launchd/systemd)",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			logDir := filepath.Join(home, ".xeterbot", "logs")
			svc := serviceFile{
				Label:   launchdLabel,
				Exec:    execPath,
				Config:  resolveConfigPath(),
				WorkDir: filepath.Join(home, ".xeterbot"),
				Log:     filepath.Join(logDir, "gateway.log"),
				ErrLog:  filepath.Join(logDir, "gateway-error.log"),
			}

			switch runtime.GOOS {
			case "darwin":
				if err := os.MkdirAll(logDir, 0o755); err != nil {
					return err
				}
				path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
				if err := writeServiceFile(path, launchdTemplate, svc); err != nil {
					return err
				}
				fmt.Printf("Daemon installed: %s\n", path)
				fmt.Printf("To start: launchctl load %s\n", path)
				fmt.Printf("To stop:  launchctl unload %s\n", path)
			case "linux":
				path := filepath.Join(home, ".config", "systemd", "user", systemdUnit)
				if err := writeServiceFile(path, systemdTemplate, svc); err != nil {
					return err
				}
				fmt.Printf("Daemon installed: %s\n", path)
				fmt.Println("To start:  systemctl --user start xeterbot")
				fmt.Println("To enable: systemctl --user enable xeterbot")
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the gateway user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			var path string
			switch runtime.GOOS {
			case "darwin":
				path = filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
			case "linux":
				path = filepath.Join(home, ".config", "systemd", "user", systemdUnit)
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", path)
			return nil
		},
	}
}

func renderServiceFile(tmpl string, svc serviceFile) ([]byte, error) {
	t, err := template.New("service").Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, svc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeServiceFile(path, tmpl string, svc serviceFile) error {
	data, err := renderServiceFile(tmpl, svc)
	if err != nil {
		return fmt.Errorf("render service file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.WorkDir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=xeterbot Lua obfuscation gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{.WorkDir}}
ExecStart={{.Exec}} gateway --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
