package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Raj-Manghani/terminus-prime/internal/config"
	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
	"github.com/Raj-Manghani/terminus-prime/internal/profiles"
)

// profileFile is the export/import document. Secrets are never part of it.
type profileFile struct {
	Profiles []profiles.Draft `yaml:"profiles"`
}

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved connection profiles",
	}
	cmd.AddCommand(
		newProfilesListCommand(),
		newProfilesAddCommand(),
		newProfilesUpdateCommand(),
		newProfilesDeleteCommand(),
		newProfilesExportCommand(),
		newProfilesImportCommand(),
	)
	return cmd
}

// withGateway unlocks the store for the duration of fn. The gateway has no
// shell attached; profile commands never connect.
func withGateway(cmd *cobra.Command, fn func(g *gateway.Gateway) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(gateway.New(a.registry, nil, a.store))
}

func newProfilesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(g *gateway.Gateway) error {
				list, err := g.ListProfiles()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTARGET")
				for _, p := range list {
					fmt.Fprintf(w, "%s\t%s\t%s@%s:%d\n", p.ID, p.Name, p.Username, p.Host, p.Port)
				}
				return w.Flush()
			})
		},
	}
}

func addProfileFlags(cmd *cobra.Command, d *profiles.Draft) {
	cmd.Flags().StringVar(&d.Name, "name", "", "display name")
	cmd.Flags().StringVar(&d.Host, "host", "", "host name or address")
	cmd.Flags().Uint16Var(&d.Port, "port", gateway.DefaultPort, "SSH port")
	cmd.Flags().StringVar(&d.Username, "username", "", "login user")
}

func newProfilesAddCommand() *cobra.Command {
	var d profiles.Draft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(g *gateway.Gateway) error {
				p, err := g.AddProfile(cmd.Context(), d)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p.ID)
				return nil
			})
		},
	}
	addProfileFlags(cmd, &d)
	return cmd
}

func newProfilesUpdateCommand() *cobra.Command {
	var d profiles.Draft
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(g *gateway.Gateway) error {
				p, err := g.GetProfile(args[0])
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("name") {
					p.Name = d.Name
				}
				if flags.Changed("host") {
					p.Host = d.Host
				}
				if flags.Changed("port") {
					p.Port = d.Port
				}
				if flags.Changed("username") {
					p.Username = d.Username
				}
				ok, err := g.UpdateProfile(cmd.Context(), p)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", gateway.ErrProfileNotFound, p.ID)
				}
				return nil
			})
		},
	}
	addProfileFlags(cmd, &d)
	return cmd
}

func newProfilesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(g *gateway.Gateway) error {
				ok, err := g.DeleteProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", gateway.ErrProfileNotFound, args[0])
				}
				return nil
			})
		},
	}
}

func newProfilesExportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write profile metadata as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(g *gateway.Gateway) error {
				list, err := g.ListProfiles()
				if err != nil {
					return err
				}
				doc := profileFile{Profiles: make([]profiles.Draft, 0, len(list))}
				for _, p := range list {
					doc.Profiles = append(doc.Profiles, p.Draft())
				}
				data, err := yaml.Marshal(doc)
				if err != nil {
					return fmt.Errorf("encode profiles: %w", err)
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(out, data, 0600)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output file")
	return cmd
}

func newProfilesImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add profiles from a YAML export, skipping ones already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc profileFile
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return withGateway(cmd, func(g *gateway.Gateway) error {
				existing, err := g.ListProfiles()
				if err != nil {
					return err
				}
				seen := make(map[profiles.Draft]bool, len(existing))
				for _, p := range existing {
					seen[p.Draft()] = true
				}
				added := 0
				for _, d := range doc.Profiles {
					if d.Port == 0 {
						d.Port = gateway.DefaultPort
					}
					if seen[d] {
						continue
					}
					if _, err := g.AddProfile(cmd.Context(), d); err != nil {
						return fmt.Errorf("import %q: %w", d.Name, err)
					}
					seen[d] = true
					added++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d profiles\n", added, len(doc.Profiles))
				return nil
			})
		},
	}
}
