package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jetstack/mediarelay/internal/protocol"
)

// ProcessFile sends the file at inputPath and writes the result into outputDir. The output
// is named after the input with the action and the extension chosen by the server, e.g.
// holiday.resolution.mp4. The output path is returned.
func (c *Client) ProcessFile(ctx context.Context, inputPath string, params *protocol.Parameters, outputDir string) (string, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open input file")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", errors.Wrap(err, "failed to stat input file")
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("input file %q is empty", inputPath)
	}

	mediaType := strings.TrimPrefix(filepath.Ext(inputPath), ".")
	if mediaType == "" {
		return "", fmt.Errorf("input file %q has no extension to use as its media type", inputPath)
	}

	tmp, err := os.CreateTemp(outputDir, ".mediarelay-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create output file")
	}
	defer func() {
		// A no-op once the file has been renamed.
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	meta, err := c.Process(ctx, params, mediaType, in, info.Size(), tmp)
	if err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write output file")
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name := fmt.Sprintf("%s.%s", base, strings.ReplaceAll(params.Action.String(), " ", "-"))
	if ext, err := protocol.NormalizeMediaType(meta.FileExtension); err == nil {
		name += "." + ext
	}
	out := filepath.Join(outputDir, name)

	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", errors.Wrap(err, "failed to move output file into place")
	}
	return out, nil
}
