package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/transports/ssh"
)

type uploadFlags struct {
	host       string
	port       int
	user       string
	remote     string
	keyPath    string
	password   string
	useAgent   bool
	knownHosts string
	insecure   bool
	proxyHost  string
	proxyUser  string
	include    []string
	exclude    []string
	force      bool
	deleteOld  bool
	exec       string
}

// sshConfig turns the flags into a transport configuration.
func (f *uploadFlags) sshConfig() *ssh.Config {
	cfg := ssh.DefaultConfig(f.host, f.user)
	cfg.Port = f.port

	switch {
	case f.useAgent:
		cfg.AuthMethod = ssh.AuthMethodAgent
	case f.password != "":
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = f.password
	default:
		cfg.AuthMethod = ssh.AuthMethodKey
		cfg.PrivateKeyPath = f.keyPath
	}

	if f.knownHosts != "" {
		cfg.KnownHostsPath = f.knownHosts
	}
	cfg.StrictHostKeyChecking = !f.insecure

	if f.proxyHost != "" {
		cfg.ProxyHost = f.proxyHost
		cfg.ProxyUser = f.proxyUser
		if cfg.ProxyUser == "" {
			cfg.ProxyUser = f.user
		}
		cfg.ProxyAuthMethod = cfg.AuthMethod
		cfg.ProxyPassword = cfg.Password
		cfg.ProxyPrivateKeyPath = cfg.PrivateKeyPath
	}

	return cfg
}

func newUploadCommand() *cobra.Command {
	f := &uploadFlags{}

	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Copy generated sources to a remote build host",
		Long: `Upload a generated source tree to a remote build host over SFTP and
optionally run the build there.

Files whose content is already present on the host are skipped. With
--delete, remote files that are not part of the upload are removed.`,
		Example: `  # Upload using the default SSH key
  fwgen upload .fwgen/thread-node --host builder --remote /srv/fw/thread-node

  # Upload through a jump host and build remotely
  fwgen upload .fwgen/thread-node --host builder --proxy bastion \
    --remote /srv/fw/thread-node --exec "idf.py build"

  # Only sources, removing stale files
  fwgen upload ./build --host builder --remote /srv/fw/x \
    --include '**/*.{cpp,h}' --include sdkconfig.defaults --delete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.user == "" {
				f.user = os.Getenv("USER")
			}
			if f.password == "" {
				f.password = os.Getenv("FWGEN_SSH_PASSWORD")
			}
			return current.upload(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.host, "host", "", "remote build host")
	cmd.Flags().IntVarP(&f.port, "port", "P", 22, "SSH port")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "SSH user (default: $USER)")
	cmd.Flags().StringVar(&f.remote, "remote", "", "remote directory")
	cmd.Flags().StringVarP(&f.keyPath, "key", "i", "", "private key file (default: ~/.ssh/id_ed25519 or id_rsa)")
	cmd.Flags().StringVar(&f.password, "password", "", "password authentication (or $FWGEN_SSH_PASSWORD)")
	cmd.Flags().BoolVar(&f.useAgent, "agent", false, "authenticate with ssh-agent")
	cmd.Flags().StringVar(&f.knownHosts, "known-hosts", "", "known_hosts file (default: ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "accept any host key")
	cmd.Flags().StringVar(&f.proxyHost, "proxy", "", "jump host")
	cmd.Flags().StringVar(&f.proxyUser, "proxy-user", "", "jump host user (default: --user)")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "only upload files matching these patterns")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "skip files matching these patterns")
	cmd.Flags().BoolVar(&f.force, "force", false, "upload files even when unchanged")
	cmd.Flags().BoolVar(&f.deleteOld, "delete", false, "remove remote files that are not uploaded")
	cmd.Flags().StringVar(&f.exec, "exec", "", "command to run in the remote directory after uploading")

	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("remote")

	return cmd
}

// upload copies dir to the remote host and runs the optional build command.
func (s *session) upload(ctx context.Context, out io.Writer, dir string, f *uploadFlags) error {
	client, err := ssh.NewSSHClient(f.sshConfig(), s.logger("ssh"))
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()

	remote := path.Clean(f.remote)
	result, err := client.UploadTree(ctx, dir, remote, ssh.UploadOptions{
		Include:          f.include,
		Exclude:          f.exclude,
		Force:            f.force,
		DeleteExtraneous: f.deleteOld,
	})
	if err != nil {
		return err
	}

	if jsonOutput && f.exec == "" {
		return writeJSON(out, result)
	}
	if !jsonOutput {
		fmt.Fprintf(out, "%s -> %s:%s: %d uploaded, %d unchanged, %d deleted (%d bytes)\n",
			dir, f.host, remote, len(result.Uploaded), len(result.Skipped), len(result.Deleted), result.BytesTransferred)
	}

	if f.exec == "" {
		return nil
	}

	execResult, execErr := client.ExecuteCommand(ctx, fmt.Sprintf("cd %s && %s", shellQuote(remote), f.exec))
	if jsonOutput {
		if err := writeJSON(out, map[string]interface{}{"upload": result, "exec": execResult}); err != nil {
			return err
		}
		return execErr
	}
	if execResult != nil {
		if execResult.Stdout != "" {
			fmt.Fprintln(out, execResult.Stdout)
		}
		if execResult.Stderr != "" {
			fmt.Fprintln(out, execResult.Stderr)
		}
	}
	return execErr
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
