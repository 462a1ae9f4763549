package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meetsync/internal/api"
	"meetsync/internal/ipc"
	"meetsync/internal/queue"
)

// Access provides read-only queue views regardless of IPC or direct store backing.
type Access interface {
	Counts(ctx context.Context) (api.WorkflowStatus, error)
	Assets(ctx context.Context, statuses []string) ([]api.Asset, error)
	Offline(ctx context.Context) ([]api.OfflineItem, error)
	Jobs(ctx context.Context, phases []string) ([]api.Job, error)
	Job(ctx context.Context, id string) (*api.JobResponse, error)
	// Live reports whether answers come from the running daemon.
	Live() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Live() bool { return true }

func (a *ipcAccess) Counts(_ context.Context) (api.WorkflowStatus, error) {
	resp, err := a.client.Status()
	if err != nil {
		return api.WorkflowStatus{}, err
	}
	return resp.Workflow, nil
}

func (a *ipcAccess) Assets(_ context.Context, statuses []string) ([]api.Asset, error) {
	resp, err := a.client.AssetList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

func (a *ipcAccess) Offline(_ context.Context) ([]api.OfflineItem, error) {
	resp, err := a.client.OfflineList()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Jobs(_ context.Context, phases []string) ([]api.Job, error) {
	resp, err := a.client.JobList(phases)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *ipcAccess) Job(_ context.Context, id string) (*api.JobResponse, error) {
	resp, err := a.client.JobShow(id)
	if err != nil {
		return nil, err
	}
	return &api.JobResponse{Job: resp.Job, Lines: resp.Lines}, nil
}

type storeAccess struct {
	store *queue.Store
}

func (a *storeAccess) Live() bool { return false }

func (a *storeAccess) Counts(ctx context.Context) (api.WorkflowStatus, error) {
	summary, err := a.store.Summarize(ctx)
	if err != nil {
		return api.WorkflowStatus{}, err
	}
	return api.FromCounts(summary, api.WorkflowStatus{}), nil
}

func (a *storeAccess) Assets(ctx context.Context, statuses []string) ([]api.Asset, error) {
	var filters []queue.AssetStatus
	for _, raw := range statuses {
		parsed, ok := queue.ParseAssetStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown asset status %q", raw)
		}
		filters = append(filters, parsed)
	}
	assets, err := a.store.ListAssets(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromAssets(assets), nil
}

func (a *storeAccess) Offline(ctx context.Context) ([]api.OfflineItem, error) {
	var items []*queue.OfflineItem
	for _, kind := range []queue.OfflineKind{queue.OfflineVideo, queue.OfflineLogEntry} {
		batch, err := a.store.ListOffline(ctx, kind)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return api.FromOfflineItems(items), nil
}

func (a *storeAccess) Jobs(ctx context.Context, phases []string) ([]api.Job, error) {
	var filters []queue.JobPhase
	for _, raw := range phases {
		parsed, ok := queue.ParseJobPhase(raw)
		if !ok {
			return nil, fmt.Errorf("unknown job phase %q", raw)
		}
		filters = append(filters, parsed)
	}
	jobs, err := a.store.ListJobs(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (a *storeAccess) Job(ctx context.Context, id string) (*api.JobResponse, error) {
	id = strings.TrimSpace(id)
	job, err := a.store.GetJob(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	detail := api.FromJobDetail(job)
	return &detail, nil
}
