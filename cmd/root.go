package cmd

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geeband/geeband/internal/download"
	"github.com/geeband/geeband/internal/ee"
	"github.com/geeband/geeband/pkg/raster"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geeband",
	Short: "Download a satellite imagery band tile by tile and assemble it",
	Long: `geeband downloads one band of a satellite image from an imagery
service that cannot export the band in a single request. The band's
pixel grid is split into tiles that fit a per-request byte quota, the
tiles are fetched concurrently and decoded, and the result is
assembled into a single raster written out as a 16-bit grayscale PNG
with an optional world file.

Examples:
  # Download the B4 band of a Sentinel-2 scene
  geeband --asset COPERNICUS/S2/20220601T100031_T33UVP --band B4 -o b4.png

  # Force smaller tiles and more workers, write a world file
  geeband --asset COPERNICUS/S2/20220601T100031_T33UVP --band B8 \
    --budget 8388608 --workers 8 -w -o b8.png

  # Write a preview of the tile layout next to the band
  geeband --asset COPERNICUS/S2/20220601T100031_T33UVP --band B4 \
    --tiling-preview tiles.png -o b4.png

  # Start the HTTP server
  geeband serve --port 8080`,
	RunE: runDownload,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.geeband.yaml)")

	// Imagery service
	rootCmd.PersistentFlags().String("endpoint", "", "imagery service base URL (required)")
	rootCmd.PersistentFlags().String("token", "", "imagery service access token")

	// Band selection
	rootCmd.Flags().String("asset", "", "source image asset id (required)")
	rootCmd.Flags().String("band", "", "band name (required)")
	rootCmd.Flags().Float64("scale", 0, "override the band's nominal scale in meters/pixel")

	// Download options
	rootCmd.Flags().Int64("budget", raster.DefaultBudget, "per-tile payload quota in bytes")
	rootCmd.Flags().Int("workers", download.DefaultWorkers, "number of concurrent tile fetches")

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output PNG file (default: stdout)")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write a world file next to the output")
	rootCmd.Flags().String("tiling-preview", "", "write the tile layout as a PNG to this path")

	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("asset", rootCmd.Flags().Lookup("asset"))
	viper.BindPFlag("band", rootCmd.Flags().Lookup("band"))
	viper.BindPFlag("scale", rootCmd.Flags().Lookup("scale"))
	viper.BindPFlag("budget", rootCmd.Flags().Lookup("budget"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("worldfile", rootCmd.Flags().Lookup("worldfile"))
	viper.BindPFlag("tiling-preview", rootCmd.Flags().Lookup("tiling-preview"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".geeband"
		// (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".geeband")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	endpoint := viper.GetString("endpoint")
	asset := viper.GetString("asset")
	band := viper.GetString("band")

	if endpoint == "" {
		return fmt.Errorf("imagery service endpoint is required (use --endpoint)")
	}
	if asset == "" {
		return fmt.Errorf("asset id is required (use --asset)")
	}
	if band == "" {
		return fmt.Errorf("band name is required (use --band)")
	}

	output := viper.GetString("output")
	if output == "" {
		if stat, _ := os.Stdout.Stat(); (stat.Mode() & os.ModeCharDevice) != 0 {
			return fmt.Errorf("didn't specify output file and standard output is a terminal")
		}
	}

	svc := ee.NewClient(endpoint, viper.GetString("token"), nil)
	d := download.New(svc, download.Options{
		Workers:        viper.GetInt("workers"),
		Budget:         viper.GetInt64("budget"),
		Logger:         log.New(cmd.ErrOrStderr(), "", log.Ltime),
		ProgressOutput: cmd.ErrOrStderr(),
	})

	grid, err := d.Download(context.Background(), asset, band, viper.GetFloat64("scale"))
	if err != nil {
		if grid == nil {
			return err
		}
		// Degraded: the grid exists but has zero regions. Write it
		// out anyway and report the failure through the exit status.
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	downloadErr := err

	if preview := viper.GetString("tiling-preview"); preview != "" {
		if err := writePNGFile(preview, d); err != nil {
			return fmt.Errorf("write tiling preview: %w", err)
		}
	}

	var out io.Writer = os.Stdout
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := png.Encode(out, grid.Image()); err != nil {
		return fmt.Errorf("write PNG: %w", err)
	}

	if viper.GetBool("worldfile") {
		if output == "" {
			return fmt.Errorf("worldfile requires an output file (use --output)")
		}
		if err := raster.WriteWorldFile(output, d.BandInfo().Transform); err != nil {
			return fmt.Errorf("write world file: %w", err)
		}
	}

	return downloadErr
}

func writePNGFile(path string, d *download.Downloader) error {
	img := d.TilingImage()
	if img == nil {
		return fmt.Errorf("no tiling to render")
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, img)
}
