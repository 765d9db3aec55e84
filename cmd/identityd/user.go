// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/internal/logging"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the configured store",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		email    string
		username string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long: `Create an account with the same rules as POST /auth/register. The
password is prompted for on a terminal, otherwise read from the first line of
standard input. The new account starts signed out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logger := logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())

			ctx := cmd.Context()
			users, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := users.Close(); closeErr != nil {
					logger.Warn("error closing user store", "error", closeErr)
				}
			}()

			svc, _, err := newService(cfg, users.users, logger)
			if err != nil {
				return err
			}

			in := auth.RegisterInput{Email: email, Password: password}
			if cmd.Flags().Changed("username") {
				in.Username = &username
			}
			result, err := svc.Register(ctx, in)
			if err != nil {
				printFieldErrors(cmd, err)
				return err
			}
			if err := svc.Logout(ctx, result.User.ID); err != nil {
				return err
			}

			cmd.Printf("Created user %s\n", result.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "optional unique username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts twice without echo on a terminal. Otherwise it reads
// one line from the command's input.
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		first, err := promptPassword(cmd, f, "Password: ")
		if err != nil {
			return "", err
		}
		second, err := promptPassword(cmd, f, "Confirm password: ")
		if err != nil {
			return "", err
		}
		if first != second {
			return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
		}
		return first, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptPassword(cmd *cobra.Command, f *os.File, prompt string) (string, error) {
	cmd.PrintErr(prompt)
	data, err := term.ReadPassword(int(f.Fd()))
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return string(data), nil
}

func printFieldErrors(cmd *cobra.Command, err error) {
	fields := auth.FieldErrorsOf(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		cmd.PrintErrf("  %s: %s\n", name, fields[name])
	}
}
