// Package convert drives the build: source discovery and compilation,
// validation, traceability and the final template-based serialization.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sdoc/content"
	"sdoc/convert/docx"
	"sdoc/state"
)

// Build is the build subcommand handler: compile sources from the first
// argument into a .docx under the second (working directory when omitted).
func Build(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	src, dst, err := sourceAndDestination(cmd, log)
	if err != nil {
		return err
	}

	env.Overwrite = cmd.Bool("overwrite")
	env.TemplateOverride = cmd.String("template")

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return buildDocument(ctx, src, dst, log)
}

// Validate is the validate subcommand handler: compile sources and report
// every broken reference without producing output.
func Validate(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("validate")

	src, err := sourceDir(cmd)
	if err != nil {
		return err
	}

	log.Info("Validation starting", zap.String("source", src))
	defer func(start time.Time) {
		log.Info("Validation completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	c, err := content.Prepare(ctx, src, log)
	if err != nil {
		return fmt.Errorf("unable to prepare content (%s): %w", src, err)
	}

	if err := content.Validate(c, log); err != nil {
		findings := multierr.Errors(err)
		for _, f := range findings {
			fmt.Fprintln(cmd.Root().Writer, f)
		}
		return fmt.Errorf("validation failed with %d finding(s)", len(findings))
	}
	return nil
}

func sourceDir(cmd *cli.Command) (string, error) {
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return "", errors.New("no input source has been specified")
	}
	src, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}

	fi, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("input source was not found (%s): %w", src, err)
	}
	if !fi.Mode().IsDir() {
		return "", fmt.Errorf("input source is not a directory (%s)", src)
	}
	return src, nil
}

func sourceAndDestination(cmd *cli.Command, log *zap.Logger) (string, string, error) {
	src, err := sourceDir(cmd)
	if err != nil {
		return "", "", err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return "", "", fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return "", "", err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	return src, dst, nil
}

// buildDocument runs the whole pipeline for a single source directory. "src"
// is the directory with the descriptor and Markdown sources, "dst" is the
// destination directory for the built file.
func buildDocument(ctx context.Context, src, dst string, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	var outputName string

	log.Info("Build starting", zap.String("from", src))
	defer func(start time.Time) {
		// NOTE: some of golang graphic processing libraries are not mature
		// enough, we want a readable failure rather than a crash.
		if r := recover(); r != nil {
			log.Error("Build ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("build panic: %v", r)
		} else {
			log.Info("Build completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName))
		}
	}(time.Now())

	c, err := content.Prepare(ctx, src, log)
	if err != nil {
		return fmt.Errorf("unable to prepare content (%s): %w", src, err)
	}

	if err := content.Validate(c, log); err != nil {
		return fmt.Errorf("content validation failed: %w", err)
	}
	content.GenerateTraceability(c, log)

	templatePath := env.TemplateOverride
	if templatePath == "" {
		templatePath = c.Info.TemplatePath(src)
	}
	if templatePath == "" {
		return errors.New("no template: set document descriptor template field or use --template")
	}
	if _, err := os.Stat(templatePath); err != nil {
		return fmt.Errorf("template was not found (%s): %w", templatePath, err)
	}

	// Determine output file name and path based on metadata and configuration.
	outputName = buildOutputPath(c, dst, env)

	// Check if output file already exists
	if _, err := os.Stat(outputName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outputName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outputName))
		if err = os.Remove(outputName); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(outputName), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	if err := docx.Generate(ctx, c, templatePath, outputName, &env.Cfg.Document, log); err != nil {
		return fmt.Errorf("unable to generate output: %w", err)
	}
	return nil
}
