package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/config"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
	"github.com/OOJ984/Fidget-Street-sub003/internal/store/pg"
)

// Version is set via ldflags at build time.
var Version = "dev"

// adminStore is the storage adminctl works against.
type adminStore interface {
	auth.PrincipalStore
	mfa.Store
	audit.Store
}

// opener connects to storage; the returned func releases it.
type opener func(ctx context.Context, dsn string) (adminStore, func(), error)

func openPostgres(ctx context.Context, dsn string) (adminStore, func(), error) {
	if dsn == "" {
		return nil, nil, errors.New("database_dsn is not set (use --dsn or FIDGET_DATABASE_DSN)")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

type app struct {
	open    opener
	cfgFile string
	dsn     string
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{open: open}
	root := &cobra.Command{
		Use:           "adminctl",
		Short:         "Out-of-band administration for Fidget Street admin accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "PostgreSQL DSN (overrides config)")

	principal := &cobra.Command{
		Use:   "principal",
		Short: "Manage admin principals",
	}
	principal.AddCommand(a.createCmd(), a.setPasswordCmd(), a.resetMFACmd())

	root.AddCommand(principal, &cobra.Command{
		Use:   "version",
		Short: "Print the version of adminctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adminctl %s\n", Version)
		},
	})
	return root
}

// withStore resolves the DSN, opens storage and runs fn against it.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, store adminStore) error) error {
	dsn := a.dsn
	if dsn == "" {
		cfg, err := config.Load(a.cfgFile)
		if err != nil {
			return err
		}
		dsn = cfg.DatabaseDSN
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, release, err := a.open(ctx, dsn)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, store)
}

func (a *app) createCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an admin principal; the password is prompted for or read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(ctx context.Context, store adminStore) error {
				p, err := auth.NewService(store).CreatePrincipal(ctx, args[0], password, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", p.Email, p.Role, p.ID)
				return nil
			})
		},
	}
	names := make([]string, len(auth.Roles))
	for i, r := range auth.Roles {
		names[i] = string(r)
	}
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOrderViewer), "one of: "+strings.Join(names, ", "))
	return cmd
}

func (a *app) setPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <email>",
		Short: "Replace a principal's password; the new password is prompted for or read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(ctx context.Context, store adminStore) error {
				p, err := store.GetPrincipalByEmail(ctx, args[0])
				if err != nil {
					return err
				}
				if err := auth.NewService(store).SetPassword(ctx, p.ID, password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", p.Email)
				return nil
			})
		},
	}
}

func (a *app) resetMFACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-mfa <email>",
		Short: "Remove a principal's second factor and backup codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, store adminStore) error {
				p, err := store.GetPrincipalByEmail(ctx, args[0])
				if err != nil {
					return err
				}
				if err := store.DisableMFA(ctx, p.ID); err != nil {
					return err
				}
				audit.NewRecorder(store).Record(ctx, audit.Event{
					Action:       audit.ActionMFADisabled,
					UserID:       p.ID,
					UserEmail:    p.Email,
					ResourceType: "admin_user",
					ResourceID:   p.ID,
					Details:      map[string]any{"method": "adminctl"},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "two-factor authentication reset for %s\n", p.Email)
				return nil
			})
		},
	}
}

// readPassword prompts without echo when r is a terminal and otherwise takes
// the first line of r.
func readPassword(r io.Reader, w io.Writer) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		if len(raw) == 0 {
			return "", errors.New("password must not be empty")
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must be provided on stdin")
	}
	return password, nil
}
