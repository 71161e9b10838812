package main

import (
	"io"

	"github.com/goccy/go-yaml"
	"github.com/skj-judge/skj-judge/types"
	"go.uber.org/zap"
)

type taskDoc struct {
	Index       int      `yaml:"index"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Given       []string `yaml:"given"`
	Expected    string   `yaml:"expected"`
}

type batchDoc struct {
	Seed  uint64    `yaml:"seed"`
	Tasks []taskDoc `yaml:"tasks"`
}

// printTasks writes the batch, answers included, as YAML
func printTasks(w io.Writer, seed uint64, tasks []types.Task) error {
	doc := batchDoc{
		Seed:  seed,
		Tasks: make([]taskDoc, 0, len(tasks)),
	}
	for i, t := range tasks {
		doc.Tasks = append(doc.Tasks, taskDoc{
			Index:       i,
			Kind:        t.Kind().String(),
			Description: t.Describe(),
			Given:       t.Given(),
			Expected:    t.Expected(),
		})
	}
	return yaml.NewEncoder(w).Encode(doc)
}

// logTasks logs the assignment of every task, without the answers
func logTasks(tasks []types.Task) {
	logger.Info("Tasks generated", zap.Int("count", len(tasks)))
	for i, t := range tasks {
		logger.Info(t.Describe(), zap.Int("task", i))
	}
}
