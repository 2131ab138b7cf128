// Package inspect implements selspec subcommands.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"selspec/css"
	"selspec/state"
)

// RunCalc prints specificity of every selector given on command line.
func RunCalc(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() == 0 {
		return errors.New("no selectors to calculate, nothing to do")
	}
	if cmd.Bool("strict") {
		env.Strict = true
	}

	return writeSpecificities(os.Stdout, cmd.Args().Slice(), env.Strict, env.Log)
}

// writeSpecificities outputs "selector<TAB>(a,b,c)<TAB>value" lines. In
// strict mode malformed selectors are not printed and all failures are
// returned together.
func writeSpecificities(w io.Writer, selectors []string, strict bool, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	var errs error
	for _, text := range selectors {
		sels, err := css.ParseSelectorList(text)
		if err != nil {
			if strict {
				errs = multierr.Append(errs, err)
				continue
			}
			log.Warn("Malformed selector, scoring recognized parts only", zap.String("selector", text), zap.Error(err))
		}
		spec := css.MaxSpecificity(sels)
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", text, spec, spec.Value()); err != nil {
			return fmt.Errorf("unable to write result: %w", err)
		}
	}
	return errs
}
