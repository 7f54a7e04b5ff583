package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/config"
	"github.com/bitfsorg/contribsplit/keystore"
)

var errNoPassword = errors.New("keystore password required (set " + EnvKeystorePassword + ")")

func keystorePassword() (string, error) {
	pw := os.Getenv(EnvKeystorePassword)
	if pw == "" {
		return "", errNoPassword
	}
	return pw, nil
}

// openKeystore unlocks the authority keystore of the configured data dir.
func openKeystore() (*keystore.Keystore, config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, cfg, err
	}
	pw, err := keystorePassword()
	if err != nil {
		return nil, cfg, err
	}
	ks, err := keystore.Open(cfg.KeystoreDir(), pw, cfg.Network)
	return ks, cfg, err
}

func keystoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage the authority keystore",
	}

	var words int
	var mnemonic string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the authority keystore from a new or given mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			pw, err := keystorePassword()
			if err != nil {
				return err
			}
			generated := mnemonic == ""
			if generated {
				bits := keystore.Mnemonic12Words
				if words == 24 {
					bits = keystore.Mnemonic24Words
				}
				if mnemonic, err = keystore.GenerateMnemonic(bits); err != nil {
					return err
				}
			}
			seed, err := keystore.SeedFromMnemonic(mnemonic, "")
			if err != nil {
				return err
			}
			ks, err := keystore.Create(cfg.KeystoreDir(), seed, pw, cfg.Network)
			if err != nil {
				return err
			}
			fmt.Printf("Keystore created in %s\n", cfg.KeystoreDir())
			fmt.Printf("Authority address: %s\n", ks.AuthorityAddress())
			if generated {
				fmt.Println("\nRecovery mnemonic (write it down, it is not stored):")
				fmt.Println(mnemonic)
			}
			return nil
		},
	}
	initCmd.Flags().IntVar(&words, "words", 12, "Mnemonic length (12 or 24)")
	initCmd.Flags().StringVar(&mnemonic, "mnemonic", "", "Restore from an existing mnemonic")

	newAddressCmd := &cobra.Command{
		Use:   "new-address",
		Short: "Issue a new split treasury address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, _, err := openKeystore()
			if err != nil {
				return err
			}
			addr, err := ks.NewSplitAddress()
			if err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "addresses",
		Short: "List issued split addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, _, err := openKeystore()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{
					"authority": ks.AuthorityAddress(),
					"splits":    ks.Addresses(),
				})
			}
			fmt.Printf("authority %s\n", ks.AuthorityAddress())
			for _, a := range ks.Addresses() {
				fmt.Printf("split     %s\n", a)
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, newAddressCmd, listCmd)
	return cmd
}
