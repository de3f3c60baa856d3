package ipc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call issues method and waits for the reply or for ctx to end. An abandoned
// call leaves the connection unusable, so it is closed.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pending := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-pending.Done:
		return pending.Error
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

// Stop requests the daemon to shut down.
func (c *Client) Stop(ctx context.Context) (*StopResponse, error) {
	var resp StopResponse
	if err := c.call(ctx, "Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register submits content for registration on behalf of owner.
func (c *Client) Register(ctx context.Context, content []byte, owner string) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.call(ctx, "Register", RegisterRequest{Owner: owner, Content: content}, &resp); err != nil {
		return nil, err
	}
	if err := errOrNil(resp.Failure); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify checks content against the registry.
func (c *Client) Verify(ctx context.Context, content []byte) (*VerifyResponse, error) {
	return c.verify(ctx, VerifyRequest{Content: content})
}

// VerifyFingerprint checks a fingerprint computed by the caller.
func (c *Client) VerifyFingerprint(ctx context.Context, fingerprint string) (*VerifyResponse, error) {
	return c.verify(ctx, VerifyRequest{Fingerprint: fingerprint})
}

func (c *Client) verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.call(ctx, "Verify", req, &resp); err != nil {
		return nil, err
	}
	if err := errOrNil(resp.Failure); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Lookup fetches one record. A missing record returns an error matching
// registry.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, fingerprint string) (*LookupResponse, error) {
	var resp LookupResponse
	if err := c.call(ctx, "Lookup", LookupRequest{Fingerprint: fingerprint}, &resp); err != nil {
		return nil, err
	}
	if err := errOrNil(resp.Failure); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListByOwner returns up to limit records for owner in sequence order.
func (c *Client) ListByOwner(ctx context.Context, owner string, limit int) (*ListByOwnerResponse, error) {
	var resp ListByOwnerResponse
	if err := c.call(ctx, "ListByOwner", ListByOwnerRequest{Owner: owner, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if err := errOrNil(resp.Failure); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed registry database diagnostics.
func (c *Client) DatabaseHealth(ctx context.Context) (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call(ctx, "DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
