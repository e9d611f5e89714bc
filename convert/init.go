package convert

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"sdoc/document"
	"sdoc/state"
)

//go:embed scaffold
var scaffoldFS embed.FS

// Init is the init subcommand handler: scaffold a new document source
// directory with a descriptor and a starter section file.
func Init(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("init")

	dst := cmd.Args().Get(0)
	if len(dst) == 0 {
		dst = "."
	}
	dst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	if _, err := os.Stat(filepath.Join(dst, document.FileName)); err == nil {
		return fmt.Errorf("document descriptor already exists: %s", filepath.Join(dst, document.FileName))
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("unable to create destination directory: %w", err)
	}

	return fs.WalkDir(scaffoldFS, "scaffold", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, err := scaffoldFS.ReadFile(path)
		if err != nil {
			return err
		}

		name := filepath.Join(dst, filepath.Base(path))
		if _, err := os.Stat(name); err == nil {
			log.Warn("Skipping existing file", zap.String("file", name))
			return nil
		}
		if err := os.WriteFile(name, data, 0644); err != nil {
			return fmt.Errorf("unable to write %s: %w", name, err)
		}
		log.Info("Created file", zap.String("file", name))
		return nil
	})
}
