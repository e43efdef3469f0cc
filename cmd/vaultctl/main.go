// cmd/vaultctl is the operator CLI, built with Cobra.
//
// Usage:
//
//	vaultctl put <data-id-hex> <tag> <content>  --server http://localhost:8080
//	vaultctl get <data-id-hex> <tag>             --server http://localhost:8080
//	vaultctl delete <data-id-hex> <tag>          --server http://localhost:8080
//	vaultctl status                              --server http://localhost:8080
//	vaultctl keyhelper generate <n>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/safevault/vault/internal/bootstrap"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/opsclient"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operator CLI for a vault node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "vault node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), statusCmd(), keyhelperCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseTag(s string) (ids.TypeTag, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	return ids.TypeTag(n), nil
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <data-id-hex> <tag> <content>",
		Short: "Store content under a data id and type tag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataID, err := opsclient.ParseDataID(args[0])
			if err != nil {
				return err
			}
			tag, err := parseTag(args[1])
			if err != nil {
				return err
			}
			c := opsclient.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), dataID, tag, []byte(args[2]), ids.HolderID{})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <data-id-hex> <tag>",
		Short: "Issue a Get for a data id and type tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataID, err := opsclient.ParseDataID(args[0])
			if err != nil {
				return err
			}
			tag, err := parseTag(args[1])
			if err != nil {
				return err
			}
			c := opsclient.New(serverAddr, timeout)
			resp, err := c.Get(context.Background(), dataID, tag, ids.HolderID{})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <data-id-hex> <tag>",
		Short: "Drop one reference to a data id and type tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataID, err := opsclient.ParseDataID(args[0])
			if err != nil {
				return err
			}
			tag, err := parseTag(args[1])
			if err != nil {
				return err
			}
			c := opsclient.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), dataID, tag); err != nil {
				return err
			}
			fmt.Printf("deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opsclient.New(serverAddr, timeout)
			raw, err := c.Nodes(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func keyhelperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyhelper",
		Short: "Bootstrap key-helper operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate <n>",
		Short: "Generate n fresh holder identities and signing keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[0], err)
			}
			pairs, err := bootstrap.GenerateKeyPairs(n)
			if err != nil {
				return err
			}
			prettyPrint(pairs)
			return nil
		},
	})
	return cmd
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
