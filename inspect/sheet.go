package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"selspec/css"
	"selspec/source"
	"selspec/state"
)

const (
	OrderCascade  = "cascade"
	OrderSelector = "selector"
)

// RunSheet lists rules of stylesheets together with their specificity.
func RunSheet(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("sheet")

	if cmd.Args().Len() == 0 {
		return errors.New("no stylesheet sources have been specified")
	}

	if media := cmd.String("media"); media != "" {
		env.Media = strings.ToLower(media)
	}

	order := cmd.String("order")
	if order != OrderCascade && order != OrderSelector {
		log.Warn("Unknown rules order requested, switching to cascade", zap.String("order", order))
		order = OrderCascade
	}

	log.Info("Processing starting", zap.Strings("sources", cmd.Args().Slice()), zap.String("media", env.Media))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	rules, err := loadRules(ctx, env, cmd.Args().Slice(), log)
	if cmd.Bool("winners") {
		if werr := writeWinners(os.Stdout, rules); werr != nil {
			return werr
		}
		return err
	}
	if werr := writeRules(os.Stdout, rules, order); werr != nil {
		return werr
	}
	return err
}

// expandSources replaces directories with stylesheet and HTML files found
// under them, in natural order.
func expandSources(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("input source was not found (%s): %w", p, err)
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".css", ".html", ".htm", ".xhtml":
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("unable to walk directory (%s): %w", p, err)
		}
		slices.SortFunc(found, func(a, b string) int {
			switch {
			case natural.Less(a, b):
				return -1
			case natural.Less(b, a):
				return 1
			}
			return 0
		})
		out = append(out, found...)
	}
	return out, nil
}

// loadRules parses all sources and returns rules applicable to env.Media.
// Source order continues across sheets so that later sheets win ties. Errors
// of individual sources are collected and returned with whatever could be
// loaded.
func loadRules(ctx context.Context, env *state.LocalEnv, paths []string, log *zap.Logger) ([]css.Rule, error) {
	paths, err := expandSources(paths)
	if err != nil {
		return nil, err
	}

	loader := source.NewLoader(env.Log)

	var (
		rules  []css.Rule
		errs   error
		offset int
	)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return rules, err
		}

		sheets, err := loader.Load(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		env.Rpt.Store(fmt.Sprintf("sources/%03d-%s", i+1, filepath.Base(path)), path)

		for _, sh := range sheets {
			if sh.Media != "" && !css.ParseMediaQuery(sh.Media).Evaluate(env.Media) {
				log.Debug("Skipping stylesheet for other media", zap.String("source", sh.Name), zap.String("media", sh.Media))
				continue
			}

			parsed := env.Parser().Parse(sh.Data, sh.Name)
			for _, w := range parsed.Warnings {
				log.Warn("Stylesheet problem", zap.String("source", sh.Name), zap.String("warning", w))
			}

			last := offset
			for _, r := range parsed.Rules(env.Media) {
				r.Order += offset
				last = max(last, r.Order)
				rules = append(rules, r)
			}
			offset = last
		}
	}
	return rules, errs
}

// sortRules orders rules in place. Cascade order is ascending precedence,
// selector order is natural order of selector text.
func sortRules(rules []css.Rule, order string) {
	if order == OrderSelector {
		slices.SortStableFunc(rules, func(a, b css.Rule) int {
			as, bs := a.Selector.String(), b.Selector.String()
			switch {
			case natural.Less(as, bs):
				return -1
			case natural.Less(bs, as):
				return 1
			}
			return a.Order - b.Order
		})
		return
	}
	slices.SortStableFunc(rules, func(a, b css.Rule) int {
		if c := a.Specificity.Compare(b.Specificity); c != 0 {
			return c
		}
		return a.Order - b.Order
	})
}

// writeRules outputs "selector<TAB>(a,b,c)<TAB>value<TAB>order" lines.
func writeRules(w io.Writer, rules []css.Rule, order string) error {
	sorted := slices.Clone(rules)
	sortRules(sorted, order)
	for _, r := range sorted {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", r.Selector, r.Specificity, r.Specificity.Value(), r.Order); err != nil {
			return fmt.Errorf("unable to write result: %w", err)
		}
	}
	return nil
}

// writeWinners outputs declarations in effect per property as
// "property: value<TAB>selector<TAB>(a,b,c)" lines sorted by property.
func writeWinners(w io.Writer, rules []css.Rule) error {
	winners := css.Winners(css.CascadeOrder(rules))

	props := make([]string, 0, len(winners))
	for p := range winners {
		props = append(props, p)
	}
	slices.Sort(props)

	for _, p := range props {
		d := winners[p]
		value := d.Value.Raw
		if d.Value.Important {
			value += " !important"
		}
		if _, err := fmt.Fprintf(w, "%s: %s\t%s\t%s\n", p, value, d.Selector, d.Specificity); err != nil {
			return fmt.Errorf("unable to write result: %w", err)
		}
	}
	return nil
}
