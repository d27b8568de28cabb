package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"task-manager/internal/models"
)

type credentialFlags struct {
	email         string
	password      string
	passwordStdin bool
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (f *credentialFlags) credentials(in io.Reader) (models.Credentials, error) {
	pw := f.password
	if f.passwordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return models.Credentials{}, fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		return models.Credentials{}, errors.New("a password is required (--password or --password-stdin)")
	}
	return models.Credentials{Email: f.email, Password: pw}, nil
}

func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := creds.credentials(cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			user, err := api.Signup(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Run login next.\n", user.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := creds.credentials(cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			user, err := api.Login(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			if err := api.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
