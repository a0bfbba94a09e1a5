// Package workers assembles the worker registry from the domain modules.
package workers

import (
	"log/slog"

	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/workers/alignment"
	"github.com/cuongbtq/task-manage/internal/workers/dataprocess"
	"github.com/cuongbtq/task-manage/internal/workers/utility"
)

// Deps are the collaborators the domain modules need at execution time.
// Processes that only route or validate (api, beat, cli) may leave them nil.
type Deps struct {
	TestData dataprocess.Store
	Records  dataprocess.StatusMarker
	Logger   *slog.Logger
}

// Registry builds the registry from every domain module
func Registry(deps Deps) (*registry.Registry, error) {
	return registry.Build(
		dataprocess.New(deps.TestData, deps.Records, deps.Logger).Contribution(),
		utility.Contribution(),
		alignment.New(deps.Logger).Contribution(),
	)
}
