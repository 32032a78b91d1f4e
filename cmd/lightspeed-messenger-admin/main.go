package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/types"
)

// A very simple CLI tool for the administration of lightspeed-messenger rooms and users.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	rootCmd := newRootCmd(persister, os.Stdin, os.Stdout)
	rootCmd.SetArgs(pflag.Args())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(persister persistence.Persister, in io.Reader, out io.Writer) *cobra.Command {
	printJSON := func(v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}
	// definition reads the JSON argument, "-" reads it from in.
	definition := func(arg string, v interface{}) error {
		var r io.Reader
		if arg == "-" {
			r = in
		} else {
			r = bytes.NewReader([]byte(arg))
		}
		return json.NewDecoder(r).Decode(v)
	}

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show room or user",
		Long:  `show is for printing user or room information with a given user/room id.`,
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all available rooms.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := persister.GetRooms()
			if err != nil {
				return err
			}
			return printJSON(rooms)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id or name]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given id or name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := persister.FindRoom(args[0])
			if err != nil {
				return err
			}
			return printJSON(room)
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all available users.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := persister.GetUsers()
			if err != nil {
				return err
			}
			return printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := persister.GetUser(args[0])
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete room or user",
		Long:  `delete removes the user or room with a given user/room id.`,
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given id and all of its messages.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := persister.DeleteRoom(args[0]); err != nil {
				return err
			}
			return persister.DeleteRoomMessages(args[0])
		},
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Long:  `delete user removes the user with the given id.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return persister.DeleteUser(args[0])
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update room or user",
		Long:  `set creates or updates a room or user.`,
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room creates or updates a room. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room := types.Room{}
			if err := definition(args[0], &room); err != nil {
				return fmt.Errorf("could not decode room: %w", err)
			}
			if room.Id == "" {
				return errors.New("no room id")
			}
			if room.Type == "" {
				room.Type = types.RoomTypeGroup
			}
			if !types.ValidRoomType(room.Type) {
				return fmt.Errorf("invalid room type %q", room.Type)
			}
			old, err := persister.GetRoom(room.Id)
			switch {
			case errors.Is(err, persistence.ErrNotFound):
				globals.AppLogger.Info("room does not exist, creating", "room", room.Id)
				return persister.CreateRoom(&room)
			case err != nil:
				return err
			}
			room.CreatedAt = old.CreatedAt
			if room.Messages == nil {
				room.Messages = old.Messages
			}
			return persister.StoreRoom(&room)
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := types.User{}
			if err := definition(args[0], &user); err != nil {
				return fmt.Errorf("could not decode user: %w", err)
			}
			if user.Id == "" {
				return errors.New("no user id")
			}
			if user.Status == "" {
				user.Status = types.UserStatusOffline
			}
			return persister.StoreUser(&user)
		},
	}
	var rootCmd = &cobra.Command{Use: "lightspeed-messenger-admin", SilenceUsage: true}
	rootCmd.SetOut(out)
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdDelete)
	rootCmd.AddCommand(cmdSet)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUsers, cmdShowUser)
	cmdDelete.AddCommand(cmdDeleteRoom, cmdDeleteUser)
	cmdSet.AddCommand(cmdSetRoom, cmdSetUser)
	return rootCmd
}
