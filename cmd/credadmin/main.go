package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ruteri/credential-store/api"
	"github.com/ruteri/credential-store/api/clients"
	"github.com/ruteri/credential-store/cryptoutils"
	"github.com/ruteri/credential-store/keylayout"
	"github.com/urfave/cli/v2"
)

var flagServer *cli.StringFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"CREDSTORE_ADDR"},
	Usage:   "Credential server address to request",
}
var flagAuthUser *cli.StringFlag = &cli.StringFlag{
	Name:    "auth-user",
	EnvVars: []string{"ADMIN_NAME"},
	Usage:   "Administrator sending the request",
}
var flagAuthPassword *cli.StringFlag = &cli.StringFlag{
	Name:    "auth-password",
	EnvVars: []string{"ADMIN_PASSWD"},
	Usage:   "Password of the administrator sending the request, prompted for when empty",
}
var flagUsername *cli.StringFlag = &cli.StringFlag{
	Name:     "username",
	Aliases:  []string{"u"},
	Required: true,
	Usage:    "User to operate on",
}
var flagPassword *cli.StringFlag = &cli.StringFlag{
	Name:  "password",
	Usage: "Password of the user, prompted for when empty",
}
var flagAdmin *cli.BoolFlag = &cli.BoolFlag{
	Name:  "admin",
	Usage: "Grant or revoke administrator rights; left unchanged when not given",
}
var flagHash *cli.StringFlag = &cli.StringFlag{
	Name:     "hash",
	Required: true,
	Usage:    "Stored hex-encoded password hash",
}

var remoteFlags = []cli.Flag{flagServer, flagAuthUser, flagAuthPassword}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "credadmin",
		Usage:     "Manage users of a credential server",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "hash",
				Usage: "Print the stored form of a password",
				Flags: []cli.Flag{flagUsername, flagPassword},
				Action: func(cCtx *cli.Context) error {
					username, password, err := localCredentials(cCtx, out)
					if err != nil {
						return err
					}
					hash, err := cryptoutils.DerivePassword(username, password)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, hash)
					return nil
				},
			},
			{
				Name:  "verify-hash",
				Usage: "Check a password against a stored hash without contacting the server",
				Flags: []cli.Flag{flagUsername, flagPassword, flagHash},
				Action: func(cCtx *cli.Context) error {
					username, password, err := localCredentials(cCtx, out)
					if err != nil {
						return err
					}
					ok, err := cryptoutils.VerifyPassword(cryptoutils.DefaultPasswordHasher, username, password, cCtx.String(flagHash.Name))
					if err != nil {
						return err
					}
					if !ok {
						return cli.Exit("password does not match", 1)
					}
					fmt.Fprintln(out, "password matches")
					return nil
				},
			},
			{
				Name:  "add-user",
				Usage: "Create a user",
				Flags: append([]cli.Flag{flagUsername, flagPassword, flagAdmin}, remoteFlags...),
				Action: func(cCtx *cli.Context) error {
					client, err := usersClient(cCtx, out)
					if err != nil {
						return err
					}
					password, err := promptPassword(out, "New password", cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					resp, err := client.CreateUser(api.CreateUserRequest{
						Username: cCtx.String(flagUsername.Name),
						Password: password,
						Admin:    adminFlag(cCtx),
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", resp.Username, resp.Status)
					return nil
				},
			},
			{
				Name:  "passwd",
				Usage: "Change the password of an existing user",
				Flags: append([]cli.Flag{flagUsername, flagPassword, flagAdmin}, remoteFlags...),
				Action: func(cCtx *cli.Context) error {
					client, err := usersClient(cCtx, out)
					if err != nil {
						return err
					}
					password, err := promptPassword(out, "New password", cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					username := cCtx.String(flagUsername.Name)
					resp, err := client.UpdateUser(username, api.UpdateUserRequest{
						Password: password,
						Admin:    adminFlag(cCtx),
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", resp.Username, resp.Status)
					return nil
				},
			},
			{
				Name:  "remove-user",
				Usage: "Remove a user",
				Flags: append([]cli.Flag{flagUsername}, remoteFlags...),
				Action: func(cCtx *cli.Context) error {
					client, err := usersClient(cCtx, out)
					if err != nil {
						return err
					}
					resp, err := client.DeleteUser(cCtx.String(flagUsername.Name))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", resp.Username, resp.Status)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Check a user's password against the server",
				Flags: []cli.Flag{flagUsername, flagPassword, flagServer},
				Action: func(cCtx *cli.Context) error {
					username, password, err := localCredentials(cCtx, out)
					if err != nil {
						return err
					}
					client := clients.NewUsersClient(cCtx.String(flagServer.Name), "", "")
					resp, err := client.VerifyUser(username, password)
					if err != nil {
						return err
					}
					if !resp.Valid {
						return cli.Exit("invalid credentials", 1)
					}
					fmt.Fprintf(out, "valid admin=%t\n", resp.Admin)
					return nil
				},
			},
		},
	}
}

func localCredentials(cCtx *cli.Context, out io.Writer) (string, string, error) {
	username := cCtx.String(flagUsername.Name)
	if err := keylayout.ValidateUsername(username); err != nil {
		return "", "", err
	}
	password, err := promptPassword(out, "Password", cCtx.String(flagPassword.Name))
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func usersClient(cCtx *cli.Context, out io.Writer) (*clients.UsersClient, error) {
	authUser := cCtx.String(flagAuthUser.Name)
	authPassword := cCtx.String(flagAuthPassword.Name)
	if authUser != "" && authPassword == "" {
		var err error
		authPassword, err = promptPassword(out, "Password for "+authUser, "")
		if err != nil {
			return nil, err
		}
	}
	return clients.NewUsersClient(cCtx.String(flagServer.Name), authUser, authPassword), nil
}

func adminFlag(cCtx *cli.Context) *bool {
	if !cCtx.IsSet(flagAdmin.Name) {
		return nil
	}
	admin := cCtx.Bool(flagAdmin.Name)
	return &admin
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
