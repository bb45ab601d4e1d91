package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/utils"
)

var tokenFlags struct {
	sub   string
	role  string
	email string
	name  string
	ttl   time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token signed with JWT_SECRET",
	Long: `token prints an HS256 token shaped like the identity provider's, for
exercising the API locally. Never use it against production.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := loadViper()
		if err != nil {
			return err
		}
		secret := v.GetString("jwt_secret")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		role, ok := model.ParseRole(tokenFlags.role)
		if !ok {
			return fmt.Errorf("unknown role %q", tokenFlags.role)
		}
		tok, err := utils.NewAccessToken(secret, model.Identity{
			UserID: tokenFlags.sub,
			Role:   role,
			Email:  tokenFlags.email,
			Name:   tokenFlags.name,
		}, tokenFlags.ttl)
		if err != nil {
			return err
		}
		cmd.Println(tok.Token)
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.sub, "sub", "dev-user", "subject (user id)")
	f.StringVar(&tokenFlags.role, "role", "member", "member or committee")
	f.StringVar(&tokenFlags.email, "email", "", "optional email claim")
	f.StringVar(&tokenFlags.name, "name", "", "optional name claim")
	f.DurationVar(&tokenFlags.ttl, "ttl", 12*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
