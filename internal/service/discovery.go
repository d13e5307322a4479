package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/liveness"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

// Discovery finds scheduled spaces that still need a dedicated workload. An
// external scheduler loop polls this and provisions for whatever comes back.
type Discovery struct {
	workloads WorkloadStore
	spaces    SpaceStore

	now func() time.Time
}

func NewDiscovery(workloads WorkloadStore, spaces SpaceStore) *Discovery {
	return &Discovery{
		workloads: workloads,
		spaces:    spaces,
		now:       time.Now,
	}
}

// FindUnhostedScheduledSpace returns the first space flagged for dedicated
// hosting that has a processed server pak for the platform and no live,
// non-full workload already serving it. Not found is the steady state once
// every scheduled space is hosted.
func (d *Discovery) FindUnhostedScheduledSpace(ctx context.Context, requester *core.Requester, platform string) (*models.Space, error) {
	if err := requester.Check(); err != nil {
		return nil, err
	}
	if platform == "" {
		return nil, fmt.Errorf("%w: no platform", core.ErrParameter)
	}

	scheduled, err := d.spaces.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	hosted, err := d.workloads.LiveSpaceIDs(ctx, liveness.Cutoff(d.now(), liveness.MatchWindow))
	if err != nil {
		return nil, err
	}

	for i := range scheduled {
		space := &scheduled[i]
		if space.ModID == nil {
			continue
		}
		if hosted[space.ID] {
			continue
		}

		ok, err := d.spaces.HasServerPak(ctx, *space.ModID, platform)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		return space, nil
	}

	return nil, fmt.Errorf("%w: no scheduled space needs hosting", core.ErrNotFound)
}
