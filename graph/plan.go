package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// ProductPlan is the list of commands creating a product
type ProductPlan struct {
	Product  Product
	Commands []Command
	// Intermediate files, deleted once the product is done
	Cleanup []string
}

// Plan is the list of commands of a graph applied to a list of products
type Plan struct {
	Graph       string
	Products    []ProductPlan
	parallelism int
	docker      DockerManager
	envs        []string
}

// PlanOption configures a Plan
type PlanOption func(p *Plan)

// WithParallelism sets the number of products processed concurrently (default: 1)
func WithParallelism(n int) PlanOption {
	return func(p *Plan) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithDocker sets the manager running the steps of the docker engine and the environment passed to the containers
func WithDocker(d DockerManager, envs []string) PlanOption {
	return func(p *Plan) {
		p.docker = d
		p.envs = envs
	}
}

// NewPlan validates the products and formats the commands of the graph for each of them
func NewPlan(g *ProcessingGraph, config GraphConfig, products []Product, options ...PlanOption) (*Plan, error) {
	if err := ValidateProducts(g, products); err != nil {
		return nil, fmt.Errorf("NewPlan[%s]: %w", g.Name, err)
	}
	plan := Plan{Graph: g.Name, parallelism: 1}
	for _, opt := range options {
		opt(&plan)
	}
	for _, p := range products {
		cmds, cleanup, err := g.commands(config, p)
		if err != nil {
			return nil, fmt.Errorf("NewPlan[%s].%w", p.Name, err)
		}
		plan.Products = append(plan.Products, ProductPlan{Product: p, Commands: cmds, Cleanup: cleanup})
	}
	return &plan, nil
}

// Commands returns the command lines of the plan, product after product
func (p *Plan) Commands() [][]string {
	var cmds [][]string
	for _, pp := range p.Products {
		for _, c := range pp.Commands {
			cmds = append(cmds, c.Argv())
		}
	}
	return cmds
}

// Run executes the plan in workdir.
// Products are processed concurrently (see WithParallelism), the commands of a product sequentially.
// The first error cancels the remaining products and is returned.
func (p *Plan) Run(ctx context.Context, workdir string) error {
	wg, gctx := errgroup.WithContext(ctx)
	wg.SetLimit(p.parallelism)
	for _, pp := range p.Products {
		pp := pp
		wg.Go(func() error {
			return p.runProduct(log.With(gctx, "product", pp.Product.Name), workdir, pp)
		})
	}
	if err := wg.Wait(); err != nil {
		return fmt.Errorf("Run[%s].%w", p.Graph, err)
	}
	return nil
}

func (p *Plan) runProduct(ctx context.Context, workdir string, pp ProductPlan) error {
	defer p.cleanup(ctx, workdir, pp.Cleanup)

	for _, c := range pp.Commands {
		if !c.condition.Pass(workdir, pp.Product) {
			log.Logger(ctx).Sugar().Debugf("skip %s (%s)", c.Name, c.condition.Name)
			continue
		}
		res, err := p.exec(ctx, workdir, c)
		if err != nil {
			return fmt.Errorf("runProduct[%s].%w", pp.Product.Name, err)
		}
		log.Logger(ctx).Debug("command done", zap.String("cmd", res.Command()), zap.Duration("duration", res.Duration))
	}
	log.Logger(ctx).Sugar().Infof("%s done", pp.Product.Name)
	return nil
}

func (p *Plan) exec(ctx context.Context, workdir string, c Command) (log.Result, error) {
	switch c.Engine {
	case docker:
		if p.docker == nil {
			return log.Result{Args: c.Argv(), ExitCode: -1}, fmt.Errorf("exec[%s]: no docker manager", c.Name)
		}
		res, err := p.docker.Process(ctx, workdir, c.Name, c.Args, p.envs)
		if err != nil {
			return res, fmt.Errorf("exec[%s]: %w", c.Name, err)
		}
		return res, nil
	case command, python:
		filter := newLogFilter(c)
		cmd := exec.Command(c.Name, c.Args...)
		cmd.Dir = workdir
		res, err := log.Exec(ctx, cmd,
			log.StdoutLevel(zapcore.DebugLevel),
			log.StdoutFilter(filter),
			log.StderrFilter(filter))
		if err != nil {
			return res, fmt.Errorf("exec[%s]: %w", res.Command(), filter.WrapError(err))
		}
		return res, nil
	}
	return log.Result{Args: c.Argv(), ExitCode: -1}, fmt.Errorf("exec: unknown engine %s", c.Engine)
}

// cleanup removes the intermediate files and their auxiliary files (overviews, statistics)
func (p *Plan) cleanup(ctx context.Context, workdir string, files []string) {
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(workdir, f)
		}
		for _, file := range []string{f, f + ".ovr", f + ".aux.xml"} {
			if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Logger(ctx).Warn("unable to remove intermediate file", zap.String("file", file), zap.Error(err))
			}
		}
	}
}
