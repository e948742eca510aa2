package main

import (
	"github.com/spf13/cobra"
)

var profileFlags struct {
	path string
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the effective profile as YAML",
	RunE:  runProfile,
}

func init() {
	profileCmd.Flags().StringVar(&profileFlags.path, "profile", "", "Profile YAML overlaid on the built-in defaults")
}

func runProfile(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile(profileFlags.path)
	if err != nil {
		return err
	}
	data, err := p.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
