package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/daemon"
	"github.com/reportbrief/reportbrief/internal/vault"
)

func cmdStart(args []string) {
	foreground := false
	for _, a := range args {
		if a == "--foreground" || a == "-f" {
			foreground = true
		}
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.Run(cfg, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStop() {
	loadConfigOrDefaults()
	if err := daemon.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("reportbrief stopped")
}

func cmdStatus() {
	loadConfigOrDefaults()
	if err := daemon.Status(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// loadConfigOrDefaults loads the config so daemon.Stop and daemon.Status
// see the configured data directory. A broken file falls back to defaults.
func loadConfigOrDefaults() {
	if _, err := config.Load(""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (using defaults)\n", err)
	}
}

func cmdSetup(args []string) {
	nonInteractive := false
	for _, a := range args {
		if a == "--non-interactive" {
			nonInteractive = true
		}
	}

	if nonInteractive {
		cmdInitConfig()
		if err := generateJWTSecret(vault.New()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		fmt.Println("Setup complete. Run 'reportbrief start' to begin.")
		return
	}

	fmt.Println("ReportBrief Setup Wizard")
	fmt.Println("========================")
	fmt.Println()

	cmdInitConfig()

	v := vault.New()
	if _, err := v.Get(vault.KeyJWT); err != nil {
		if err := generateJWTSecret(v); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		} else {
			fmt.Println("Generated a session signing secret.")
		}
	}

	if confirm("Store an Anthropic API key now?") {
		fmt.Print("Enter API key for anthropic: ")
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(vault.KeyAnthropic, strings.TrimSpace(string(key))); err != nil {
			fmt.Fprintf(os.Stderr, "error storing key: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("\nTo add it later, run: reportbrief keys set anthropic")
		fmt.Println("Or set summarizer.backend = \"mock\" for local development.")
	}

	fmt.Println()
	fmt.Println("Setup complete. Run 'reportbrief start' to begin.")
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
}

func cmdInstallService() {
	loadConfigOrDefaults()
	if err := daemon.InstallService(config.Get().Server.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error installing service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service installed successfully")
}

func cmdUninstallService() {
	if err := daemon.UninstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "error uninstalling service: %v\n", err)
		os.Exit(1)
	}
}

func cmdConfigExport(args []string) {
	path := "reportbrief-export.toml"
	if len(args) > 0 {
		path = args[0]
	}
	loadConfigOrDefaults()
	if err := config.ExportConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "error exporting config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config exported to %s\n", path)
}

func cmdConfigImport(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: reportbrief config-import <file>")
		os.Exit(1)
	}
	loadConfigOrDefaults()
	if err := config.ImportConfig(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error importing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config imported from %s\n", args[0])
}
