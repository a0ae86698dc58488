package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/etnz/app-packager/backend"
	"github.com/etnz/app-packager/config"
	"github.com/etnz/app-packager/deb"
	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/layout"
	"github.com/etnz/app-packager/logger"
	"github.com/etnz/app-packager/rpm"
	"github.com/etnz/app-packager/shell"
	"github.com/etnz/app-packager/sign"
	"github.com/spf13/cobra"
)

// project is the configuration with the descriptor and version it points at.
type project struct {
	cfg     *config.Config
	desc    *descriptor.Descriptor
	version string
}

// loadProject reads the configuration, applies flag overrides and reads the descriptor.
// The version is only read when withVersion is set: installing does not need it.
func loadProject(cmd *cobra.Command, withVersion bool) (*project, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("rootdir") {
		cfg.Rootdir = rootdir
	}
	if flags.Changed("prefix") {
		cfg.Prefix = prefix
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	cfg.Define(defines)

	resDir, err := cfg.ResourceDir()
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.Read(resDir)
	if err != nil {
		return nil, err
	}
	p := &project{cfg: cfg, desc: desc}
	if !withVersion {
		return p, nil
	}

	manifest, err := cfg.ManifestPath()
	if err != nil {
		return nil, err
	}
	if p.version, err = descriptor.ReadVersion(manifest); err != nil {
		return nil, err
	}
	return p, nil
}

// job builds the backend job for arch, wired to the logger.
func (p *project) job(cmd *cobra.Command, arch, installPrefix string) (*backend.Job, error) {
	log := logger.Logger()

	src, err := p.cfg.Sources(p.desc, p.version, arch)
	if err != nil {
		return nil, err
	}
	out, err := p.cfg.OutputPath()
	if err != nil {
		return nil, err
	}
	runner := shell.ExecRunner{}
	if verbose {
		runner.Stdout = cmd.ErrOrStderr()
		runner.Stderr = cmd.ErrOrStderr()
	}

	job := &backend.Job{
		Descriptor: p.desc,
		Version:    p.version,
		Name:       p.cfg.Name,
		Prefix:     installPrefix,
		Sources:    src,
		OutputDir:  out,
		WorkDir:    out,
		Runner:     runner,
		StripTool:  p.cfg.Strip,
		Listener:   func(e fmt.Stringer) { log.Debugf("%s", e) },
	}
	if progress {
		job.Progress = cmd.ErrOrStderr()
	}
	if signFlag {
		job.SignKey = os.Getenv(sign.KeyEnv)
		if job.SignKey == "" {
			return nil, fmt.Errorf("--sign requires %s", sign.KeyEnv)
		}
	}
	return job, nil
}

// resolveArch maps the --arch flag, or the host, to the token of format f.
func resolveArch(machine string, f layout.Format) (string, error) {
	if machine == "" {
		return layout.HostArch(f)
	}
	return layout.Arch(machine, f)
}

// pathArch is the {{.Arch}} of install and uninstall: the uname name of machine,
// as build output directories use, or machine itself when the table has no entry.
func pathArch(machine string) string {
	if arch, err := layout.Arch(machine, layout.FormatRPM); err == nil {
		return arch
	}
	return machine
}

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	var flatpak bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the application under the prefix",
		Long: `Install strips the binary, then copies it with the desktop entry, the
metainfo file and every icon of icons/apps under <rootdir><prefix>.
With --flatpak the flatpak prefix (/app) is used instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInstall(cmd, flatpak, false)
		},
	}
	cmd.Flags().BoolVar(&flatpak, "flatpak", false, "install under the flatpak prefix")
	return cmd
}

// createUninstallCommand creates the uninstall subcommand
func createUninstallCommand() *cobra.Command {
	var flatpak bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the files install placed",
		Long: `Uninstall removes exactly the files install would place: the binary, the
desktop entry, the metainfo file, and the icons named as in the source tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInstall(cmd, flatpak, true)
		},
	}
	cmd.Flags().BoolVar(&flatpak, "flatpak", false, "uninstall from the flatpak prefix")
	return cmd
}

// executeInstall handles install and uninstall.
func executeInstall(cmd *cobra.Command, flatpak, remove bool) error {
	log := logger.Logger()

	p, err := loadProject(cmd, false)
	if err != nil {
		return err
	}
	pfx := p.cfg.Prefix
	if flatpak {
		pfx = p.cfg.FlatpakPrefix
	}
	root, err := layout.NewInstallRoot(p.cfg.Rootdir, pfx)
	if err != nil {
		return err
	}
	job, err := p.job(cmd, pathArch(runtime.GOARCH), pfx)
	if err != nil {
		return err
	}

	if remove {
		if err := backend.Uninstall(job, root); err != nil {
			return err
		}
		log.Infof("uninstalled %s from %s", p.desc.AppID, root.Base())
		return nil
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := backend.Install(ctx, job, root); err != nil {
		return err
	}
	log.Infof("installed %s under %s", p.desc.AppID, root.Base())
	return nil
}

// createBuildDebCommand creates the build-deb subcommand
func createBuildDebCommand() *cobra.Command {
	var (
		arch        string
		native      bool
		compression string
		cleanStale  bool
	)
	cmd := &cobra.Command{
		Use:   "build-deb",
		Short: "Build a .deb package",
		Long: `Build-deb stages the application in <name>_<version>_<arch>/ with a
DEBIAN/control file and runs dpkg-deb --root-owner-group --build on it.
With --native the archive is assembled without dpkg-deb.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, ok := deb.ParseCompression(compression)
			if !ok {
				return fmt.Errorf("unsupported compression %q, expected gzip, xz or zstd", compression)
			}
			debArch, err := resolveArch(arch, layout.FormatDeb)
			if err != nil {
				return err
			}
			p, err := loadProject(cmd, true)
			if err != nil {
				return err
			}
			d := backend.DebDriver{Arch: debArch, Native: native, Compression: comp, Stale: stalePolicy(cleanStale)}
			return executeBuild(cmd, p, d, debArch, p.cfg.Prefix)
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "target architecture (default: host)")
	cmd.Flags().BoolVar(&native, "native", false, "assemble the archive without dpkg-deb")
	cmd.Flags().StringVar(&compression, "compression", string(deb.CompressionGzip), "native archive compression: gzip, xz or zstd")
	cmd.Flags().BoolVar(&cleanStale, "clean-stale", false, "remove a staging directory left by an earlier build")
	return cmd
}

// createBuildRPMCommand creates the build-rpm subcommand
func createBuildRPMCommand() *cobra.Command {
	var (
		arch       string
		cleanStale bool
	)
	cmd := &cobra.Command{
		Use:   "build-rpm",
		Short: "Build an .rpm package",
		Long: `Build-rpm stages the application in <name>-<version>-1.<arch>/BUILDROOT,
writes a spec file next to it and runs rpmbuild -bb. The package is moved out of
rpmbuild's architecture directory into the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rpmArch, err := resolveArch(arch, layout.FormatRPM)
			if err != nil {
				return err
			}
			p, err := loadProject(cmd, true)
			if err != nil {
				return err
			}
			d := backend.RPMDriver{Arch: rpmArch, License: p.cfg.License, Group: p.cfg.Group, Stale: stalePolicy(cleanStale)}
			return executeBuild(cmd, p, d, rpmArch, p.cfg.Prefix)
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "target architecture (default: host)")
	cmd.Flags().BoolVar(&cleanStale, "clean-stale", false, "remove a staging directory left by an earlier build")
	return cmd
}

// createBuildFlatpakCommand creates the build-flatpak and build-flatpak-install subcommands
func createBuildFlatpakCommand(install bool) *cobra.Command {
	var arch string
	use, short := "build-flatpak", "Build the flatpak into a local repository"
	if install {
		use, short = "build-flatpak-install", "Build the flatpak and install it for the current user"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: `Runs flatpak-builder on the manifest named after the application id.
Cache, dependency remote and sandboxing come from the flatpak section of packaging.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fpArch, err := resolveArch(arch, layout.FormatFlatpak)
			if err != nil {
				return err
			}
			p, err := loadProject(cmd, false)
			if err != nil {
				return err
			}
			manifest, err := p.cfg.FlatpakManifestPath(p.desc.AppID, fpArch)
			if err != nil {
				return err
			}
			buildDir, repo, err := p.cfg.FlatpakDirs()
			if err != nil {
				return err
			}
			d := backend.FlatpakDriver{
				Arch:     fpArch,
				Manifest: manifest,
				BuildDir: buildDir,
				Repo:     repo,
				DepsFrom: p.cfg.Flatpak.Remote(),
				Cache:    p.cfg.Flatpak.Cache,
				Sandbox:  p.cfg.Flatpak.Sandbox,
				Verbose:  verbose,
				Install:  install,
			}
			return executeBuild(cmd, p, d, fpArch, p.cfg.FlatpakPrefix)
		},
	}
	cmd.Flags().StringVar(&arch, "arch", "", "target architecture (default: host)")
	return cmd
}

func stalePolicy(clean bool) backend.StalePolicy {
	if clean {
		return backend.StaleRemove
	}
	return backend.StaleFail
}

// executeBuild runs driver d for project p and prints the produced artifacts.
func executeBuild(cmd *cobra.Command, p *project, d backend.Driver, arch, installPrefix string) error {
	log := logger.Logger()

	job, err := p.job(cmd, arch, installPrefix)
	if err != nil {
		return err
	}

	log.Infof("building %s %s %s (%s)", d.Name(), p.cfg.Name, p.version, arch)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := d.Run(ctx, job)
	if err != nil {
		return err
	}
	for _, a := range res.Artifacts {
		fmt.Fprintln(cmd.OutOrStdout(), a)
	}
	return nil
}

// createDescribeCommand creates the describe subcommand
func createDescribeCommand() *cobra.Command {
	var keyring string
	cmd := &cobra.Command{
		Use:   "describe [flags] PACKAGE...",
		Short: "Print name, version and architecture of built packages",
		Long: `Describe reads the metadata of .deb and .rpm files. With --keyring, the
detached signature <package>.asc is checked as well.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var keys string
			if keyring != "" {
				b, err := os.ReadFile(keyring)
				if err != nil {
					return err
				}
				keys = string(b)
			}
			for _, path := range args {
				line, err := describe(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if keys != "" {
					id, err := sign.Verify(path, keys)
					if err != nil {
						return err
					}
					line += fmt.Sprintf(" signed-by=%X", id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyring, "keyring", "", "armored public key ring to verify signatures with")
	return cmd
}

// createExportKeyCommand creates the export-key subcommand
func createExportKeyCommand() *cobra.Command {
	var binary bool
	cmd := &cobra.Command{
		Use:   "export-key",
		Short: "Print the public key matching the signing key",
		Long: `Export-key prints the public part of the key in GPG_PRIVATE_KEY, armored
unless --binary is set. The armored output is what describe --keyring expects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv(sign.KeyEnv)
			if key == "" {
				return fmt.Errorf("export-key requires %s", sign.KeyEnv)
			}
			pub, err := sign.PublicKey(key, !binary)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(pub)
			return err
		},
	}
	cmd.Flags().BoolVar(&binary, "binary", false, "write the binary serialized key")
	return cmd
}

// describe returns "<path> <name> <version> <arch>" for a package file.
func describe(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".deb":
		info, err := deb.ReadInfo(f)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s %s", path, info.Package, info.Version, info.Architecture), nil
	case ".rpm":
		info, err := rpm.ReadInfo(f)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s-%s %s", path, info.Name, info.Version, info.Release, info.Arch), nil
	}
	return "", fmt.Errorf("unknown package format")
}
