package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/command"
	"github.com/atomikpanda/nixup/internal/render"
)

func init() {
	action.Register("configure-daemon-service", func() action.Action { return &ConfigureDaemonService{} })
}

const daemonPath = "/nix/var/nix/profiles/default/bin/nix-daemon"

const systemdServiceTemplate = `[Unit]
Description=Nix Daemon
Documentation=man:nix-daemon https://nixos.org/manual
RequiresMountsFor=/nix/store
RequiresMountsFor=/nix/var

[Service]
ExecStart=@{{.DaemonPath}} nix-daemon --daemon
KillMode=process
LimitNOFILE=1048576

[Install]
WantedBy=multi-user.target
`

const systemdSocketTemplate = `[Unit]
Description=Nix Daemon Socket
Before=multi-user.target
RequiresMountsFor=/nix/store

[Socket]
ListenStream=/nix/var/nix/daemon-socket/socket

[Install]
WantedBy=sockets.target
`

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>org.nixos.nix-daemon</string>
  <key>KeepAlive</key>
  <true/>
  <key>RunAtLoad</key>
  <true/>
  <key>ProgramArguments</key>
  <array>
    <string>/bin/sh</string>
    <string>-c</string>
    <string>/bin/wait4path {{.DaemonPath}} &amp;&amp; exec {{.DaemonPath}}</string>
  </array>
</dict>
</plist>
`

const (
	systemdServicePath = "/etc/systemd/system/nix-daemon.service"
	systemdSocketPath  = "/etc/systemd/system/nix-daemon.socket"
	launchdPlistPath   = "/Library/LaunchDaemons/org.nixos.nix-daemon.plist"
)

// ConfigureDaemonService installs and starts the nix-daemon under the
// host's init system.
type ConfigureDaemonService struct {
	InitSystem string             `json:"init_system"` // "systemd" | "launchd"
	Children   []*action.Stateful `json:"children"`

	// Captured during execute.
	Enabled bool `json:"enabled,omitempty"`
}

// PlanConfigureDaemonService renders the unit files for initSystem and
// plans their placement plus service activation.
func PlanConfigureDaemonService(initSystem string) (*action.Stateful, error) {
	data := struct{ DaemonPath string }{DaemonPath: daemonPath}

	var files []*action.Stateful
	switch initSystem {
	case "systemd":
		service, err := render.Render(systemdServiceTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("render nix-daemon.service: %w", err)
		}
		socket, err := render.Render(systemdSocketTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("render nix-daemon.socket: %w", err)
		}
		files = append(files,
			action.Plan(&CreateFile{Path: systemdServicePath, Contents: service, Mode: 0o644}),
			action.Plan(&CreateFile{Path: systemdSocketPath, Contents: socket, Mode: 0o644}),
		)
	case "launchd":
		plist, err := render.Render(launchdPlistTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("render nix-daemon plist: %w", err)
		}
		files = append(files,
			action.Plan(&CreateFile{Path: launchdPlistPath, Contents: plist, Mode: 0o644}),
		)
	default:
		return nil, fmt.Errorf("no supported init system found (wanted systemd or launchd, host has %q)", initSystem)
	}

	return action.Plan(&ConfigureDaemonService{InitSystem: initSystem, Children: files}), nil
}

func (a *ConfigureDaemonService) Tag() string { return "configure-daemon-service" }

func (a *ConfigureDaemonService) Describe() string {
	return fmt.Sprintf("Configure and start the nix-daemon service (%s)", a.InitSystem)
}

func (a *ConfigureDaemonService) Explain() []string {
	switch a.InitSystem {
	case "systemd":
		return []string{
			"Installs nix-daemon.service and nix-daemon.socket under /etc/systemd/system",
			"Enables and starts nix-daemon.socket",
		}
	default:
		return []string{
			"Installs org.nixos.nix-daemon.plist under /Library/LaunchDaemons",
			"Loads the daemon with launchctl",
		}
	}
}

func (a *ConfigureDaemonService) Execute(ctx context.Context) error {
	if err := action.ExecuteSequential(ctx, a.Children); err != nil {
		if revErr := action.RevertReverse(ctx, a.Children); revErr != nil {
			return fmt.Errorf("%w (additionally, reverting completed children failed: %v)", err, revErr)
		}
		return err
	}

	switch a.InitSystem {
	case "systemd":
		if _, err := command.Run(ctx, "systemctl", "daemon-reload"); err != nil {
			return err
		}
		if a.serviceActive(ctx) {
			a.Enabled = true
			return nil
		}
		if _, err := command.Run(ctx, "systemctl", "enable", "--now", "nix-daemon.socket"); err != nil {
			return err
		}
	case "launchd":
		if _, err := command.Run(ctx, "launchctl", "load", "-w", launchdPlistPath); err != nil {
			return err
		}
	}
	a.Enabled = true
	return nil
}

func (a *ConfigureDaemonService) Revert(ctx context.Context) error {
	var errs []error
	if a.Enabled {
		switch a.InitSystem {
		case "systemd":
			if a.serviceActive(ctx) {
				if _, err := command.Run(ctx, "systemctl", "disable", "--now", "nix-daemon.socket"); err != nil {
					errs = append(errs, err)
				}
			}
		case "launchd":
			if _, err := command.Run(ctx, "launchctl", "unload", launchdPlistPath); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := action.RevertReverse(ctx, a.Children); err != nil {
		errs = append(errs, err)
	}
	if a.InitSystem == "systemd" {
		if _, err := command.Run(ctx, "systemctl", "daemon-reload"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *ConfigureDaemonService) serviceActive(ctx context.Context) bool {
	_, err := command.Run(ctx, "systemctl", "is-enabled", "--quiet", "nix-daemon.socket")
	return err == nil
}
