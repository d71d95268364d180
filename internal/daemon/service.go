package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const serviceLabel = "dev.reportbrief.daemon"

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>start</string>
        <string>--foreground</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.DataDir}}/reportbrief.out.log</string>
    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/reportbrief.err.log</string>
    <key>ProcessType</key>
    <string>Background</string>
    <key>ThrottleInterval</key>
    <integer>5</integer>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=ReportBrief report summarization service
After=network-online.target

[Service]
Type=simple
ExecStart={{.ProgramPath}} start --foreground
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type unitData struct {
	Label       string
	ProgramPath string
	DataDir     string
}

// serviceManager describes how one init system installs a user service.
type serviceManager struct {
	template string
	path     func(home string) string
	load     [][]string
	unload   [][]string
}

func managerFor(goos string) (*serviceManager, error) {
	switch goos {
	case "darwin":
		return &serviceManager{
			template: launchdPlistTemplate,
			path: func(home string) string {
				return filepath.Join(home, "Library", "LaunchAgents", serviceLabel+".plist")
			},
			load:   [][]string{{"launchctl", "load", "{path}"}},
			unload: [][]string{{"launchctl", "unload", "{path}"}},
		}, nil
	case "linux":
		return &serviceManager{
			template: systemdUnitTemplate,
			path: func(home string) string {
				return filepath.Join(home, ".config", "systemd", "user", "reportbrief.service")
			},
			load: [][]string{
				{"systemctl", "--user", "daemon-reload"},
				{"systemctl", "--user", "enable", "--now", "reportbrief.service"},
			},
			unload: [][]string{{"systemctl", "--user", "disable", "--now", "reportbrief.service"}},
		}, nil
	default:
		return nil, fmt.Errorf("service install is not supported on %s", goos)
	}
}

// renderUnit writes the service definition for goos to w.
func renderUnit(w io.Writer, goos string, data unitData) error {
	m, err := managerFor(goos)
	if err != nil {
		return err
	}
	tmpl, err := template.New("unit").Parse(m.template)
	if err != nil {
		return fmt.Errorf("parsing service template: %w", err)
	}
	return tmpl.Execute(w, data)
}

// InstallService writes a user-level service definition for the current
// binary (launchd on macOS, systemd on Linux) and loads it.
func InstallService(dataDir string) error {
	m, err := managerFor(runtime.GOOS)
	if err != nil {
		return err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}

	dataDir = expandHome(dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	unitPath := m.path(homeDir)
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("creating service directory: %w", err)
	}

	f, err := os.Create(unitPath)
	if err != nil {
		return fmt.Errorf("creating service file %s: %w", unitPath, err)
	}
	if err := renderUnit(f, runtime.GOOS, unitData{Label: serviceLabel, ProgramPath: execPath, DataDir: dataDir}); err != nil {
		f.Close()
		return fmt.Errorf("writing service file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing service file: %w", err)
	}
	fmt.Printf("Service definition written to %s\n", unitPath)

	runAll(m.unload, unitPath, false)
	if err := runAll(m.load, unitPath, true); err != nil {
		return err
	}
	fmt.Printf("Service %s loaded\n", serviceLabel)
	return nil
}

// UninstallService unloads and removes the service definition.
func UninstallService() error {
	m, err := managerFor(runtime.GOOS)
	if err != nil {
		return err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	unitPath := m.path(homeDir)
	runAll(m.unload, unitPath, false)

	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing service file: %w", err)
	}
	fmt.Printf("Service %s uninstalled\n", serviceLabel)
	return nil
}

// runAll runs each command with "{path}" substituted. When strict is false
// failures are ignored.
func runAll(cmds [][]string, path string, strict bool) error {
	for _, c := range cmds {
		args := make([]string, len(c))
		for i, a := range c {
			if a == "{path}" {
				a = path
			}
			args[i] = a
		}
		cmd := exec.Command(args[0], args[1:]...)
		if strict {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err != nil && strict {
			return fmt.Errorf("%s: %w", args[0], err)
		}
	}
	return nil
}
