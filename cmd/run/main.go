package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/fumin/boson"
	"github.com/fumin/boson/config"
	"github.com/fumin/boson/store"
)

const (
	fnameObservables = "observables.csv"
	fnameDone        = "done.txt"
	fnameConfig      = "config.yaml"
	dirGenerator     = "generator"
	fnameDB          = "runs.db"
)

var (
	runDir  = flag.String("d", filepath.Join("runs", "boson"), "run directory")
	presets = flag.String("p", strings.Join(config.PresetNames(), ","), "comma separated presets to run")
	cfgPath = flag.String("c", "", "config file to run instead of presets, in yaml or toml")
)

func writeObservables(dir string, res *boson.Result) error {
	fpath := filepath.Join(dir, fnameObservables)
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	modes, _ := res.Occupations.Dims()
	header := []string{"t"}
	for s := range modes {
		header = append(header, fmt.Sprintf("n%d", s))
	}
	for s := range modes {
		header = append(header, fmt.Sprintf("p%d", s))
	}
	header = append(header, "sz", "sz2", "total")
	if err1 := w.Write(header); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	row := make([]string, 0, len(header))
	for j, t := range res.Times {
		row = append(row[:0], format(t))
		for s := range modes {
			row = append(row, format(res.Occupations.At(s, j)))
		}
		for s := range modes {
			row = append(row, format(res.Populations.At(s, j)))
		}
		row = append(row, format(res.Sz[j]), format(res.Sz2[j]), format(res.Totals[j]))
		if err1 := w.Write(row); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func exportGenerator(dir string, cfg *config.Config) error {
	s, err := boson.New(cfg.Modes, cfg.Particles, cfg.Truncation)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := s.ExportGenerator(filepath.Join(dir, dirGenerator), cfg.Start, cfg.Schedule()); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func solve(ctx context.Context, st *store.Store, dir string, cfg *config.Config) error {
	donePath := filepath.Join(dir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := cfg.Save(filepath.Join(dir, fnameConfig)); err != nil {
		return errors.Wrap(err, "")
	}

	res, err := boson.Run(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeObservables(dir, res); err != nil {
		return errors.Wrap(err, "")
	}
	if err := exportGenerator(dir, cfg); err != nil {
		return errors.Wrap(err, "")
	}
	id, err := st.Save(ctx, cfg, res)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.WriteFile(donePath, []byte(id), 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func configs() ([]*config.Config, error) {
	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(filepath.Base(*cfgPath), filepath.Ext(*cfgPath))
		}
		return []*config.Config{cfg}, nil
	}

	cfgs := make([]*config.Config, 0)
	for _, name := range strings.Split(*presets, ",") {
		cfg, err := config.Preset(strings.TrimSpace(name))
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func main() {
	flag.Parse()
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	ctx := context.Background()
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	st, err := store.Open(filepath.Join(*runDir, fnameDB))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer st.Close()

	cfgs, err := configs()
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, cfg := range cfgs {
		dir := filepath.Join(*runDir, cfg.Name)
		if err := solve(ctx, st, dir, cfg); err != nil {
			return errors.Wrap(err, cfg.String())
		}
		log.Info("solved", "config", cfg)
	}

	// Gather archived runs and print them.
	records, err := st.List(ctx)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Printf("id,name,L,N,kmax,start,end,success,steps,nfev\n")
	for _, r := range records {
		c := r.Config
		fmt.Printf("%s,%s,%d,%d,%d,%f,%f,%t,%d,%d\n", r.ID, c.Name, c.Modes, c.Particles, c.Truncation, c.Start, c.End, r.Success, r.NSteps, r.NFev)
	}
	return nil
}
