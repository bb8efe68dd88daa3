//go:build windows

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/internal/service"
	"github.com/urfave/cli"
	"golang.org/x/sys/windows"
)

var ErrRequiresAdmin = errors.New("this operation requires administrator privileges")

var (
	isAdminFunc   = isAdmin
	openSCManager = service.OpenSCManager
)

// isAdmin reports whether the process token belongs to
// BUILTIN\Administrators.
func isAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)
	isMember, err := windows.Token(0).IsMember(sid)
	return err == nil && isMember
}

func serviceCommand() cli.Command {
	return cli.Command{
		Name:  "service",
		Usage: "manages the metronom Windows service",
		Subcommands: []cli.Command{
			{Name: "install", Usage: "installs metronom as a Windows service", Action: serviceInstall},
			{Name: "uninstall", Usage: "removes the metronom Windows service", Action: serviceUninstall},
			{Name: "start", Usage: "starts the service", Action: serviceStart},
			{Name: "stop", Usage: "stops the service", Action: serviceStop},
			{Name: "status", Usage: "shows the service status", Action: serviceStatus},
		},
	}
}

// withServiceManager runs fn against the SCM, requiring administrator
// rights when admin is set.
func withServiceManager(ctx *cli.Context, action string, admin bool, fn func(*service.ServiceManager) error) error {
	if admin && !isAdminFunc() {
		common.PrintRuntimeErr(ctx, "service", action, ErrRequiresAdmin)
		return nil
	}
	scm, err := openSCManager()
	if err != nil {
		common.PrintRuntimeErr(ctx, "service", action, err)
		return nil
	}
	defer scm.Close()
	if err := fn(service.NewServiceManager(scm)); err != nil {
		common.PrintRuntimeErr(ctx, "service", action, err)
	}
	return nil
}

func serviceInstall(ctx *cli.Context) error {
	return withServiceManager(ctx, "install", true, func(m *service.ServiceManager) error {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		if err := m.Install(service.DefaultServiceName, "Metronom", exe, service.StartTypeAutomatic); err != nil {
			return err
		}
		fmt.Printf("Service %q installed.\n", service.DefaultServiceName)
		return nil
	})
}

func serviceUninstall(ctx *cli.Context) error {
	return withServiceManager(ctx, "uninstall", true, func(m *service.ServiceManager) error {
		if err := m.Uninstall(service.DefaultServiceName); err != nil {
			return err
		}
		fmt.Printf("Service %q removed.\n", service.DefaultServiceName)
		return nil
	})
}

func serviceStart(ctx *cli.Context) error {
	return withServiceManager(ctx, "start", true, func(m *service.ServiceManager) error {
		if err := m.Start(service.DefaultServiceName); err != nil {
			return err
		}
		fmt.Println("Service started.")
		return nil
	})
}

func serviceStop(ctx *cli.Context) error {
	return withServiceManager(ctx, "stop", true, func(m *service.ServiceManager) error {
		if err := m.Stop(service.DefaultServiceName); err != nil {
			return err
		}
		fmt.Println("Service stopped.")
		return nil
	})
}

func serviceStatus(ctx *cli.Context) error {
	return withServiceManager(ctx, "status", false, func(m *service.ServiceManager) error {
		st, err := m.Status(service.DefaultServiceName)
		if err != nil {
			return err
		}
		fmt.Printf("Service %q: %s\n", service.DefaultServiceName, st)
		return nil
	})
}
