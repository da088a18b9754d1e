package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"m2p/layout"
	"m2p/markup"
	"m2p/pptx"
	"m2p/raster"
	"m2p/state"
)

// Run is the "fix" subcommand action: repair an already rendered deck.
// Arguments: HTML PPTX [OUTPUT].
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("fix")

	htmlPath := cmd.Args().Get(0)
	pptxPath := cmd.Args().Get(1)
	if len(htmlPath) == 0 || len(pptxPath) == 0 {
		return errors.New("both HTML reference and PPTX input must be specified")
	}
	if htmlPath, err = filepath.Abs(htmlPath); err != nil {
		return err
	}
	if pptxPath, err = filepath.Abs(pptxPath); err != nil {
		return err
	}
	if cmd.Args().Len() > 3 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[3:]))
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")
	env.StyledContainers = cmd.Bool("experimental")

	outName := cmd.Args().Get(2)
	if len(outName) == 0 {
		outName = buildOutputPath(pptxPath, filepath.Dir(pptxPath), env)
	} else if outName, err = filepath.Abs(outName); err != nil {
		return err
	}
	if err := prepareOutput(outName, env, log); err != nil {
		return err
	}

	log.Info("Repair starting", zap.String("html", htmlPath), zap.String("pptx", pptxPath), zap.String("output", outName))
	defer func(start time.Time) {
		log.Info("Repair completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return repair(ctx, htmlPath, pptxPath, outName, log)
}

// RunConvert is the "convert" subcommand action: preprocess markdown, render
// both intermediates with the marp CLI and repair the result.
// Arguments: MARKDOWN [DESTINATION].
func RunConvert(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input markdown has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")
	env.StyledContainers = cmd.Bool("experimental")
	env.KeepIntermediate = cmd.Bool("keep-intermediate") || env.Cfg.Document.KeepIntermediate

	outName := buildOutputPath(src, dst, env)
	if err := prepareOutput(outName, env, log); err != nil {
		return err
	}

	log.Info("Conversion starting", zap.String("from", src), zap.String("to", outName))
	defer func(start time.Time) {
		log.Info("Conversion completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	// Marp gets a preprocessed copy of the source, never the original.
	base := strings.TrimSuffix(src, filepath.Ext(src))
	cleaned := base + "-m2p.md"
	htmlOut := base + "-m2p.html"
	pptxOut := base + "-m2p_raw.pptx"

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("unable to read markdown source: %w", err)
	}
	if err := os.WriteFile(cleaned, CleanMarkdown(data), 0644); err != nil {
		return fmt.Errorf("unable to write preprocessed markdown: %w", err)
	}

	intermediates := []string{cleaned, htmlOut, pptxOut}
	defer func() {
		for _, name := range intermediates {
			if env.Rpt != nil {
				if er := env.Rpt.StoreCopy(filepath.Join("intermediates", filepath.Base(name)), name); er != nil {
					log.Debug("Unable to store intermediate in report", zap.String("file", name), zap.Error(er))
				}
			}
			if env.KeepIntermediate {
				continue
			}
			if er := os.Remove(name); er != nil && !os.IsNotExist(er) {
				log.Warn("Unable to remove intermediate file", zap.String("file", name), zap.Error(er))
			}
		}
	}()

	if err := renderIntermediates(ctx, &env.Cfg.Document.Marp, cleaned, htmlOut, pptxOut, log); err != nil {
		return fmt.Errorf("unable to render intermediates: %w", err)
	}

	return repair(ctx, htmlOut, pptxOut, outName, log)
}

// prepareOutput validates the output destination the way every subcommand
// expects: refuse to clobber without --overwrite, create missing directories.
func prepareOutput(outName string, env *state.LocalEnv, log *zap.Logger) error {
	if _, err := os.Stat(outName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outName))
		if err = os.Remove(outName); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(outName), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	return nil
}

// repair runs the geometry pipeline: parse the HTML reference, open the
// PPTX, rewrite per-slide geometry and save the result.
func repair(ctx context.Context, htmlPath, pptxPath, outName string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)
	cfg := &env.Cfg.Document

	f, err := os.Open(htmlPath)
	if err != nil {
		return fmt.Errorf("unable to open HTML reference: %w", err)
	}
	slides, err := markup.Parse(f, markup.Options{
		Canvas: markupCanvas(env),
		Styled: env.StyledContainers,
		Log:    env.Log,
	})
	f.Close()
	if err != nil {
		return fmt.Errorf("unable to parse HTML reference: %w", err)
	}

	doc, err := pptx.Open(pptxPath, env.Log)
	if err != nil {
		return fmt.Errorf("unable to open PPTX: %w", err)
	}

	var rnd *raster.Renderer
	if env.StyledContainers {
		var cache *raster.Cache
		if cfg.Raster.Fetch.CachePath != "" {
			if cache, err = raster.OpenCache(cfg.Raster.Fetch.CachePath, env.Log); err != nil {
				log.Warn("Image cache unavailable, fetching directly", zap.Error(err))
				cache = nil
			} else {
				defer cache.Close()
			}
		}
		fetcher := raster.NewFetcher(time.Duration(cfg.Raster.Fetch.Timeout)*time.Second, cache, env.Log)
		rnd = raster.NewRenderer(fetcher, env.Log)
		if cfg.Raster.SaveRendered {
			dir := cfg.Raster.RenderedDir
			if dir == "" {
				dir = filepath.Dir(outName)
			}
			if err := os.MkdirAll(dir, 0755); err == nil {
				rnd.SaveDir = dir
			} else {
				log.Warn("Unable to create rendered-container directory", zap.String("dir", dir), zap.Error(err))
			}
		}
	}

	if err := repairDocument(ctx, doc, slides, rnd, log); err != nil {
		// best effort - the document is still written, degraded slides are
		// already logged with their causes
		log.Warn("Some slides could not be repaired", zap.Error(err))
	}

	if err := doc.Save(outName); err != nil {
		return fmt.Errorf("unable to save output: %w", err)
	}

	env.Rpt.Store("result"+filepath.Ext(outName), outName)
	return nil
}

func markupCanvas(env *state.LocalEnv) layout.Size {
	return layout.Size{
		W: env.Cfg.Document.Layout.CanvasWidth,
		H: env.Cfg.Document.Layout.CanvasHeight,
	}
}
