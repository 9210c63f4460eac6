package graph

import (
	"errors"
	"os"
	"path/filepath"
)

// Condition to do an action
type Condition struct {
	Name   string
	PassFn interface{}
}

// ProductCondition is a condition on a product to execute a step
type ProductCondition Condition

// ProductConditionFn is a PassFunction of ProductCondition executed before a step, in the working directory
type ProductConditionFn func(workdir string, p Product) bool

// pass is a condition always true
var pass = ProductCondition{"pass", ProductConditionFn(func(workdir string, p Product) bool { return true })}

// condSourceExists returns true if the source of the product exists
var condSourceExists = ProductCondition{"source_exists", ProductConditionFn(func(workdir string, p Product) bool {
	return exists(workdir, p.Source)
})}

// condOutputNotExist returns true if the product has not been created yet
var condOutputNotExist = ProductCondition{"output_not_exist", ProductConditionFn(func(workdir string, p Product) bool {
	return !exists(workdir, p.Name)
})}

var productConditionJSON = map[string]ProductCondition{
	pass.Name:               pass,
	condSourceExists.Name:   condSourceExists,
	condOutputNotExist.Name: condOutputNotExist,
}

func exists(workdir, file string) bool {
	if file == "" {
		return false
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(workdir, file)
	}
	_, err := os.Stat(file)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// Pass returns true if the step must be executed for the product
func (c ProductCondition) Pass(workdir string, p Product) bool {
	if c.PassFn == nil {
		return true
	}
	return c.PassFn.(ProductConditionFn)(workdir, p)
}
