package processor

import (
	"context"
	"fmt"

	"github.com/scottyhq/dinoSARaws/graph"
)

// GraphRunner runs a processing graph on products, in a working directory
type GraphRunner interface {
	Run(ctx context.Context, graphName string, products []graph.Product, workdir string) error
}

// PlanRunner implements GraphRunner with graph plans
type PlanRunner struct {
	// Config overrides the default configuration of the graphs
	Config   graph.GraphConfig
	Parallel int
	// TopsAppImage is the docker image of ISCE. If empty, topsApp.py is run locally
	TopsAppImage string
	Docker       graph.DockerManager
	DockerEnvs   []string
}

func (r PlanRunner) load(ctx context.Context, graphName string) (*graph.ProcessingGraph, graph.GraphConfig, error) {
	var (
		g      *graph.ProcessingGraph
		config graph.GraphConfig
		err    error
	)
	if graphName == graph.GraphTopsApp {
		g, err = graph.NewTopsAppGraph(r.TopsAppImage)
		config = graph.DefaultConfig()
	} else {
		g, config, err = graph.LoadGraph(ctx, graphName)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load[%s]: %w", graphName, err)
	}
	for k, v := range r.Config {
		config[k] = v
	}
	return g, config, nil
}

// Run implements GraphRunner
func (r PlanRunner) Run(ctx context.Context, graphName string, products []graph.Product, workdir string) error {
	g, config, err := r.load(ctx, graphName)
	if err != nil {
		return fmt.Errorf("PlanRunner.%w", err)
	}
	options := []graph.PlanOption{graph.WithParallelism(r.Parallel)}
	if r.Docker != nil {
		options = append(options, graph.WithDocker(r.Docker, r.DockerEnvs))
	}
	plan, err := graph.NewPlan(g, config, products, options...)
	if err != nil {
		return fmt.Errorf("PlanRunner.%w", err)
	}
	if err := plan.Run(ctx, workdir); err != nil {
		return fmt.Errorf("PlanRunner.%w", err)
	}
	return nil
}
