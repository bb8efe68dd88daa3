package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/energylab/metronom/cmd/common"
	daemonpkg "github.com/energylab/metronom/internal/daemon"
	"github.com/energylab/metronom/pkg/credman"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/urfave/cli"
)

// secretInput is where secret set reads the value. Replaced in tests.
var secretInput io.Reader = os.Stdin

var openSecrets = func() (*credman.SecretManager, error) {
	return daemonpkg.OpenSecrets(metrolib.ConfigDir)
}

// readSecretValue reads the first line of r without its line ending.
func readSecretValue(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", errors.New("empty secret value")
	}
	return value, nil
}

func setSecret(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no secret name provided"))
	}
	value, err := readSecretValue(secretInput)
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "read_value", err)
		return nil
	}
	sm, err := openSecrets()
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "open_store", err)
		return nil
	}
	if err := sm.Set(name, value); err != nil {
		common.PrintRuntimeErr(ctx, "secret", "set", err)
		return nil
	}
	fmt.Printf("Secret %q stored. Restart the daemon to apply it.\n", name)
	return nil
}

func deleteSecret(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no secret name provided"))
	}
	sm, err := openSecrets()
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "open_store", err)
		return nil
	}
	if err := sm.Delete(name); err != nil {
		common.PrintRuntimeErr(ctx, "secret", "delete", err)
		return nil
	}
	fmt.Printf("Secret %q deleted.\n", name)
	return nil
}

func listSecrets(ctx *cli.Context) error {
	sm, err := openSecrets()
	if err != nil {
		common.PrintRuntimeErr(ctx, "secret", "open_store", err)
		return nil
	}
	names := sm.Names()
	if len(names) == 0 {
		fmt.Println("metronom: no secrets stored")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
