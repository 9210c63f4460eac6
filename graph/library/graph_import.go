package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/scottyhq/dinoSARaws/graph"
)

// Loads a graph (built-in name or json file) and prints its summary and the commands of the ISCE products.
// With -export, writes the graph as json.
func main() {
	ctx := context.Background()

	os.Setenv("GRAPHPATH", ".")

	graphPath := flag.String("path", graph.GraphCOG, "json graph path or built-in graph (COG, Browse, TopsApp)")
	export := flag.String("export", "", "write the graph as json in this file")
	flag.Parse()

	g, conf, err := graph.LoadGraph(ctx, *graphPath)
	if err != nil {
		log.Fatal(err)
	}

	if *export != "" {
		b, err := json.MarshalIndent(g.ToJSON(conf), "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*export, b, 0644); err != nil {
			log.Fatal(err)
		}
	}

	s := fmt.Sprintf("Load %s:\n%s\n- config:\n", *graphPath, g.Summary())
	for k, v := range conf {
		s += fmt.Sprintf("  * %-25s: %s\n", k, v)
	}

	products := graph.ISCEProducts()
	for i := range products {
		products[i].Ramp = strings.TrimSuffix(products[i].Name, ".tif") + ".cpt"
	}
	if plan, err := graph.NewPlan(g, conf, products); err != nil {
		s += fmt.Sprintf("- unable to plan the ISCE products: %v\n", err)
	} else {
		s += "- commands:\n"
		for _, cmd := range plan.Commands() {
			s += "  $ " + strings.Join(cmd, " ") + "\n"
		}
	}
	log.Print(s)
}
