package main

import (
	"bufio"
	"fmt"
	"strings"

	authdto "crmboard/internal/auth/dto"

	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	var (
		email    string
		password string
		register bool
		name     string
		company  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}

			var (
				resp *authdto.TokenResponse
				err  error
			)
			if register {
				resp, err = a.client.Register(cmd.Context(), authdto.RegisterRequest{
					Email: email, Password: password, Name: name, CompanyName: company,
				})
			} else {
				resp, err = a.client.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (tenant %s, %s)\n", resp.User.Email, resp.User.TenantID, resp.User.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	cmd.Flags().BoolVar(&register, "register", false, "Create a new company account")
	cmd.Flags().StringVar(&name, "name", "", "Your name (with --register)")
	cmd.Flags().StringVar(&company, "company", "", "Company name (with --register)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.tenant(); err != nil {
				return err
			}
			user, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> tenant=%s role=%s\n", user.Name, user.Email, user.TenantID, user.Role)
			return nil
		},
	}
}
