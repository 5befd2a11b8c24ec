package tags

import (
	"context"

	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
)

// Observer returns the event observer that keeps both partitions current.
// Variant changes rebuild both partitions; instance changes rebuild only
// the partition they belong to.
func (x *Index) Observer() events.Observer {
	return events.NewFuncObserver("tags", func(e events.Event) error {
		ctx := e.Context
		if ctx == nil {
			ctx = context.Background()
		}
		switch e.Type {
		case events.TopicVariantsChanged:
			x.BuildTags(ctx)
			x.BuildForeignTags(ctx)
		case events.TopicInstancesChanged:
			x.BuildTags(ctx)
		case events.TopicForeignInstancesChanged:
			x.BuildForeignTags(ctx)
		}
		return nil
	}, events.TopicVariantsChanged, events.TopicInstancesChanged, events.TopicForeignInstancesChanged)
}
