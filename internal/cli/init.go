package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitaware/internal/config"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.sitaware)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration and example environment facts",
	Long: `Creates the config directory with config.yaml, an example device-location
map and an example room layout. Existing files are kept unless --force is set.`,
	RunE: runInit,
}

const exampleDevices = `{
    "kitchen": ["light", "stove", "fan"],
    "living_room": ["light", "tv", "thermostat"],
    "bedroom": ["light", "blinds"],
    "entrance": ["front_door_lock", "camera"]
}
`

const exampleRooms = `{
    "kitchen": {"adjacent": ["living_room"]},
    "living_room": {"adjacent": ["kitchen", "entrance", "bedroom"]},
    "bedroom": {"adjacent": ["living_room"]},
    "entrance": {"adjacent": ["living_room"], "exterior": true}
}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		dir = filepath.Dir(config.DefaultPath())
	}

	c := config.Default()
	c.Facts.Devices = "IoT_device_location.json"
	c.Facts.Rooms = "room_setup.json"
	c.Store.Path = filepath.Join(dir, "sessions.db")
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	header := "# sitaware configuration.\n" +
		"# The API key is read from SITAWARE_API_KEY or OPENAI_API_KEY.\n\n"

	files := []struct{ name, content string }{
		{"config.yaml", header + string(data)},
		{"IoT_device_location.json", exampleDevices},
		{"room_setup.json", exampleRooms},
	}

	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, f.content)
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, path)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "sitaware init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Evaluate an event:")
	fmt.Fprintf(out, "  sitaware --config %s eval --location kitchen --command \"turn on the stove\"\n", filepath.Join(dir, "config.yaml"))
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
