package graph

var ConditionPass = pass
var ConditionSourceExists = condSourceExists
var ConditionOutputNotExist = condOutputNotExist

var NewCOGGraph = newCOGGraph
var NewBrowseGraph = newBrowseGraph

func NewProcessingGraph(name string, steps []ProcessingStep, cleanup []Arg) (*ProcessingGraph, error) {
	return newProcessingGraph(name, steps, cleanup)
}

func (g *ProcessingGraph) Steps() []ProcessingStep {
	return g.steps
}
