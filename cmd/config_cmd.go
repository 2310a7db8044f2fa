package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/config"
)

var initDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Create, view and validate the agnvar configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create an agnvar configuration file at ~/.agnvar/agnvar.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("%s already exists", cfgPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		cfg := config.Default()
		if !initDefaults {
			if err := promptConfig(bufio.NewReader(os.Stdin), cfg); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  agnvar inspect   Check the AGN parameter database")
		fmt.Println("  agnvar run       Join, derive and write the chunks")
		fmt.Println("  agnvar plot      Render the diagnostic plots")
		return nil
	},
}

// promptConfig asks for the settings that have no sensible default.
func promptConfig(reader *bufio.Reader, cfg *config.Config) error {
	fmt.Println("agnvar Configuration Setup")
	fmt.Println("==========================")
	fmt.Println()

	fmt.Println("AGN Parameters")
	fmt.Println("--------------")
	cfg.Source.Path = config.ExpandHome(prompt(reader, "SQLite database", cfg.Source.Path))
	cfg.Source.Table = prompt(reader, "Table", cfg.Source.Table)
	chunk, err := strconv.Atoi(prompt(reader, "Chunk size", strconv.Itoa(cfg.Source.ChunkSize)))
	if err != nil {
		return fmt.Errorf("invalid chunk size: %w", err)
	}
	cfg.Source.ChunkSize = chunk
	fmt.Println()

	fmt.Println("Galaxy Catalog")
	fmt.Println("--------------")
	cfg.Catalog.Type = prompt(reader, "Catalog type (postgresql/mongodb/memory)", cfg.Catalog.Type)
	cfg.Catalog.Name = prompt(reader, "Catalog name", cfg.Catalog.Name)
	switch cfg.Catalog.Type {
	case config.CatalogPostgres:
		cfg.Catalog.Path = ""
		cfg.Catalog.Host = prompt(reader, "Host", "localhost")
		port, err := strconv.Atoi(prompt(reader, "Port", "5432"))
		if err != nil {
			return fmt.Errorf("invalid port: %w", err)
		}
		cfg.Catalog.Port = port
		cfg.Catalog.Database = prompt(reader, "Database name", "")
		cfg.Catalog.Schema = prompt(reader, "Schema", "public")
		cfg.Catalog.Table = prompt(reader, "Table", cfg.Catalog.Table)
		cfg.Catalog.Username = prompt(reader, "Username", "")
		cfg.Catalog.Password = prompt(reader, "Password (or ${VAR}, vault:, aws-sm:)", "")
	case config.CatalogMongo:
		cfg.Catalog.Path = ""
		cfg.Catalog.ConnectionString = prompt(reader, "Connection string", "mongodb://localhost:27017")
		cfg.Catalog.Database = prompt(reader, "Database name", "")
		cfg.Catalog.Table = prompt(reader, "Collection", cfg.Catalog.Table)
	default:
		cfg.Catalog.Path = config.ExpandHome(prompt(reader, "Catalog CSV", cfg.Catalog.Path))
	}
	fmt.Println()

	fmt.Println("Photometry")
	fmt.Println("----------")
	cfg.Template.SEDPath = config.ExpandHome(prompt(reader, "Spectral template (.gz)", cfg.Template.SEDPath))
	cfg.Template.BandpassPath = config.ExpandHome(prompt(reader, "i-band throughput (leave empty for built-in)", cfg.Template.BandpassPath))
	fmt.Println()

	cfg.Output.Directory = config.ExpandHome(prompt(reader, "Output directory", cfg.Output.Directory))
	fmt.Println()
	return nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		writeConfig(os.Stdout, cfg)
		return nil
	},
}

func writeConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current configuration:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Source:\n")
	fmt.Fprintf(w, "    Path:           %s\n", cfg.Source.Path)
	fmt.Fprintf(w, "    Table:          %s\n", cfg.Source.Table)
	fmt.Fprintf(w, "    Chunk Size:     %d\n", cfg.Source.ChunkSize)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Catalog:\n")
	fmt.Fprintf(w, "    Type:           %s\n", cfg.Catalog.Type)
	fmt.Fprintf(w, "    Name:           %s\n", cfg.Catalog.Name)
	switch cfg.Catalog.Type {
	case config.CatalogPostgres:
		fmt.Fprintf(w, "    Host:           %s\n", cfg.Catalog.Host)
		fmt.Fprintf(w, "    Port:           %d\n", cfg.Catalog.Port)
		fmt.Fprintf(w, "    Database:       %s\n", cfg.Catalog.Database)
		fmt.Fprintf(w, "    Table:          %s.%s\n", cfg.Catalog.Schema, cfg.Catalog.Table)
		fmt.Fprintf(w, "    Username:       %s\n", cfg.Catalog.Username)
		fmt.Fprintf(w, "    Password:       %s\n", maskSecret(cfg.Catalog.Password))
		fmt.Fprintf(w, "    Max Conns:      %d\n", cfg.Catalog.MaxConnections)
	case config.CatalogMongo:
		fmt.Fprintf(w, "    Connection:     %s\n", maskSecret(cfg.Catalog.ConnectionString))
		fmt.Fprintf(w, "    Database:       %s\n", cfg.Catalog.Database)
		fmt.Fprintf(w, "    Collection:     %s\n", cfg.Catalog.Table)
	default:
		fmt.Fprintf(w, "    Path:           %s\n", cfg.Catalog.Path)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Photometry:\n")
	fmt.Fprintf(w, "    Template:       %s\n", cfg.Template.SEDPath)
	bp := cfg.Template.BandpassPath
	if bp == "" {
		bp = "(built-in i band)"
	}
	fmt.Fprintf(w, "    Bandpass:       %s\n", bp)
	fmt.Fprintf(w, "    Grid Step:      %g\n", cfg.Template.GridStep)
	fmt.Fprintf(w, "    Cosmology:      H0=%g Om0=%g\n", cfg.Cosmology.H0, cfg.Cosmology.Om0)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Output:\n")
	fmt.Fprintf(w, "    Directory:      %s\n", cfg.Output.Directory)
	if cfg.Output.S3Bucket != "" {
		fmt.Fprintf(w, "    S3:             s3://%s/%s\n", cfg.Output.S3Bucket, cfg.Output.S3Prefix)
	}
	fmt.Fprintf(w, "    Plots:          %s\n", cfg.Plot.Directory)
	fmt.Fprintf(w, "    State:          %s\n", cfg.Pipeline.StatePath)
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configInitCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write the built-in defaults without prompting")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
