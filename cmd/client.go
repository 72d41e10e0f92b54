package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/client"
)

var clientFlags struct {
	file        string
	action      string
	resolution  string
	aspectRatio string
	start       float64
	end         float64
	extension   string
	outputDir   string
	wait        time.Duration
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "send a media file to a mediarelay server",
	Long: `Upload a file, have the server transform it and save the result next
to the input or in --output-dir.

The server address and stream rate are read from the same config file as
the server.`,
	Example: `  mediarelay client -c config.yaml --file holiday.mp4 --action resolution --resolution 720p
  mediarelay client -c config.yaml --file holiday.mp4 --action clip --start 5 --end 12 --extension gif`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	fs := clientCmd.PersistentFlags()
	fs.StringVarP(&configFilePath, "config", "c", "", "Config file location, shared with the server.")
	fs.StringVarP(&clientFlags.file, "file", "f", "", "The media file to upload.")
	fs.StringVarP(&clientFlags.action, "action", "a", "compress", "One of compress, resolution, aspect-ratio, audio, clip.")
	fs.StringVar(&clientFlags.resolution, "resolution", "", "Target resolution for the resolution action: 480p, 720p, 1080p, 1440p or 4K.")
	fs.StringVar(&clientFlags.aspectRatio, "aspect-ratio", "", "Target aspect ratio for the aspect-ratio action, e.g. 16:9.")
	fs.Float64Var(&clientFlags.start, "start", 0, "Clip start in seconds.")
	fs.Float64Var(&clientFlags.end, "end", 0, "Clip end in seconds.")
	fs.StringVar(&clientFlags.extension, "extension", "", "Clip output format, gif or webm.")
	fs.DurationVar(&clientFlags.wait, "response-timeout", 0, "How long to wait for the server to process the file. Zero waits indefinitely.")
	fs.StringVarP(&clientFlags.outputDir, "output-dir", "o", "", "Where to save the result. Defaults to the directory of --file.")
}

func runClient(cmd *cobra.Command, args []string) error {
	if clientFlags.file == "" {
		return fmt.Errorf("--file is required")
	}
	params, err := clientParameters(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configFilePath)
	if err != nil {
		return err
	}
	host := cfg.ServerAddress
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	c, err := client.New(client.Options{
		Address:         fmt.Sprintf("%s:%d", host, cfg.ServerPort),
		ChunkSize:       cfg.StreamRate,
		FrameTimeout:    cfg.FrameTimeout,
		ResponseTimeout: clientFlags.wait,
	})
	if err != nil {
		return err
	}

	outputDir := clientFlags.outputDir
	if outputDir == "" {
		outputDir = filepath.Dir(clientFlags.file)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = klog.NewContext(ctx, klog.Background())

	out, err := c.ProcessFile(ctx, clientFlags.file, params, outputDir)
	if body, ok := client.IsServerError(err); ok {
		color.Red("Error %s: %s\n", body.ErrorCode, body.Description)
		if body.Remedy != "" {
			color.Yellow("%s\n", body.Remedy)
		}
		return err
	}
	if err != nil {
		return err
	}
	color.Green("%s finished, saved to %s\n", params.Action, out)
	return nil
}

func clientParameters(cmd *cobra.Command) (*protocol.Parameters, error) {
	action, err := parseAction(clientFlags.action)
	if err != nil {
		return nil, err
	}
	params := &protocol.Parameters{
		Action:      action,
		Resolution:  clientFlags.resolution,
		AspectRatio: clientFlags.aspectRatio,
		Extension:   clientFlags.extension,
	}
	if cmd.Flags().Changed("start") {
		params.StartSeconds = &clientFlags.start
	}
	if cmd.Flags().Changed("end") {
		params.EndSeconds = &clientFlags.end
	}
	return params, nil
}
