// Command app-packager installs an application and builds its deb, rpm and
// flatpak packages from a single AppStream metainfo descriptor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/etnz/app-packager/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Global flags
var (
	configFile string
	verbose    bool
	rootdir    string
	prefix     string
	outputDir  string
	signFlag   bool
	progress   bool
	defines    kvFlags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := createRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// createRootCommand builds the command tree. Flags are bound to fresh defaults on every call.
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "app-packager",
		Short: "Install and package a desktop application",
		Long: `app-packager reads the application id, summary, developer and contact
from the AppStream metainfo file of the resource directory, and the version from
the build manifest. It then installs the application under a prefix, or stages it
and runs dpkg-deb, rpmbuild or flatpak-builder.

Configuration is read from packaging.yaml when present. ROOTDIR and PREFIX from
the environment override it, and flags override both.`,
		SilenceUsage:      true,
		PersistentPreRunE: initLogger,
	}

	defines = kvFlags{}
	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createUninstallCommand())
	rootCmd.AddCommand(createBuildDebCommand())
	rootCmd.AddCommand(createBuildRPMCommand())
	rootCmd.AddCommand(createBuildFlatpakCommand(false))
	rootCmd.AddCommand(createBuildFlatpakCommand(true))
	rootCmd.AddCommand(createDescribeCommand())
	rootCmd.AddCommand(createExportKeyCommand())
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configFile, "config", "c", "", "packaging configuration (default ./packaging.yaml if present)")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log every step and external command")
	fs.StringVar(&rootdir, "rootdir", "", "directory the install prefix is grafted onto (env ROOTDIR)")
	fs.StringVar(&prefix, "prefix", "", "install prefix (env PREFIX, default /usr)")
	fs.StringVarP(&outputDir, "output", "o", "", "directory receiving built packages")
	fs.BoolVar(&signFlag, "sign", false, "write a detached signature for each package, key from GPG_PRIVATE_KEY")
	fs.BoolVar(&progress, "progress", false, "show a progress bar while installing files")
	fs.Var(&defines, "define", "template variable for packaging.yaml (repeatable)")
}

func initLogger(cmd *cobra.Command, args []string) error {
	z, err := logger.New(verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Init(z)
	return nil
}
