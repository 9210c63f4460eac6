package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
)

type ProcessingGraphJSON struct {
	Name    string            `json:"name,omitempty"`
	Config  map[string]string `json:"config"`
	Steps   []ProcessingStep  `json:"processing_steps"`
	Cleanup []ArgJSON         `json:"cleanup,omitempty"`
}

// ToJSON returns the serializable version of the graph and its configuration
func (g *ProcessingGraph) ToJSON(config GraphConfig) ProcessingGraphJSON {
	res := ProcessingGraphJSON{Name: g.Name, Config: config, Steps: g.steps}
	for _, arg := range g.cleanup {
		res.Cleanup = append(res.Cleanup, ArgJSON{arg})
	}
	return res
}

func (t *ProductCondition) UnmarshalJSON(data []byte) error {
	var res string
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	if res == "" {
		res = pass.Name
	}

	var ok bool
	*t, ok = productConditionJSON[res]
	if !ok {
		return fmt.Errorf("UnmarshalJSON: unknown condition: %s (must be one of %v)", res, reflect.ValueOf(productConditionJSON).MapKeys())
	}
	return nil
}

func (t ProductCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Name)
}

type argJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Flag  string `json:"flag,omitempty"`
}

type ArgJSON struct {
	Arg
}

func (a *ArgJSON) UnmarshalJSON(data []byte) error {
	var res argJSON
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}

	switch res.Type {
	case "fixed":
		a.Arg = ArgFixed(res.Value)
	case "config":
		a.Arg = ArgConfig(res.Value)
	case "product":
		a.Arg = ArgProduct(res.Value)
	case "options":
		a.Arg = ArgOptions{Flag: res.Flag, Key: res.Value}
	default:
		return fmt.Errorf("UnmarshalJSON: unknown type: %s (must be one of fixed, config, product, options)", res.Type)
	}
	return nil
}

func (a ArgJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Arg)
}

func (a ArgFixed) MarshalJSON() ([]byte, error) {
	return json.Marshal(argJSON{Type: "fixed", Value: string(a)})
}

func (a ArgConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(argJSON{Type: "config", Value: string(a)})
}

func (a ArgProduct) MarshalJSON() ([]byte, error) {
	return json.Marshal(argJSON{Type: "product", Value: string(a)})
}

func (a ArgOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(argJSON{Type: "options", Value: a.Key, Flag: a.Flag})
}

type processingStepJSON struct {
	Engine    string           `json:"engine"` // cmd, python or docker
	Command   string           `json:"command"`
	Args      []ArgJSON        `json:"args"`
	Condition ProductCondition `json:"condition"`
}

func (a *ProcessingStep) UnmarshalJSON(data []byte) error {
	res := processingStepJSON{Condition: pass}
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}

	*a = ProcessingStep{
		Engine:    res.Engine,
		Command:   res.Command,
		Condition: res.Condition,
	}
	for _, v := range res.Args {
		a.Args = append(a.Args, v.Arg)
	}
	return nil
}

func (s ProcessingStep) MarshalJSON() ([]byte, error) {
	res := processingStepJSON{Engine: s.Engine, Command: s.Command, Condition: s.Condition}
	for _, arg := range s.Args {
		res.Args = append(res.Args, ArgJSON{arg})
	}
	return json.Marshal(res)
}
