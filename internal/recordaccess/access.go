package recordaccess

import (
	"context"

	"provenance/internal/api"
	"provenance/internal/ipc"
)

// Access provides record operations regardless of IPC or in-process backing.
type Access interface {
	Register(ctx context.Context, data []byte, owner string) (api.RegisterResponse, error)
	Verify(ctx context.Context, data []byte) (api.VerifyResponse, error)
	VerifyFingerprint(ctx context.Context, fingerprint string) (api.VerifyResponse, error)
	Lookup(ctx context.Context, fingerprint string) (api.Record, error)
	ListByOwner(ctx context.Context, owner string, limit int) (api.RecordListResponse, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewServiceAccess returns an Access backed by an in-process record service.
func NewServiceAccess(service *api.RecordService) Access {
	return service
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Register(ctx context.Context, data []byte, owner string) (api.RegisterResponse, error) {
	resp, err := a.client.Register(ctx, data, owner)
	if err != nil {
		return api.RegisterResponse{}, err
	}
	return resp.Result, nil
}

func (a *ipcAccess) Verify(ctx context.Context, data []byte) (api.VerifyResponse, error) {
	resp, err := a.client.Verify(ctx, data)
	if err != nil {
		return api.VerifyResponse{}, err
	}
	return resp.Result, nil
}

func (a *ipcAccess) VerifyFingerprint(ctx context.Context, fingerprint string) (api.VerifyResponse, error) {
	resp, err := a.client.VerifyFingerprint(ctx, fingerprint)
	if err != nil {
		return api.VerifyResponse{}, err
	}
	return resp.Result, nil
}

func (a *ipcAccess) Lookup(ctx context.Context, fingerprint string) (api.Record, error) {
	resp, err := a.client.Lookup(ctx, fingerprint)
	if err != nil {
		return api.Record{}, err
	}
	return resp.Record, nil
}

func (a *ipcAccess) ListByOwner(ctx context.Context, owner string, limit int) (api.RecordListResponse, error) {
	resp, err := a.client.ListByOwner(ctx, owner, limit)
	if err != nil {
		return api.RecordListResponse{}, err
	}
	return resp.Result, nil
}
