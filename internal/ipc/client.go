package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Archivist.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Archivist.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload ingests a local file.
func (c *Client) Upload(kind, title, path string) (*UploadResponse, error) {
	var resp UploadResponse
	req := UploadRequest{Kind: kind, Title: title, Path: path}
	if err := c.client.Call("Archivist.Upload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemList returns items optionally filtered by statuses.
func (c *Client) ItemList(statuses []string) (*ItemListResponse, error) {
	var resp ItemListResponse
	req := ItemListRequest{Statuses: statuses}
	if err := c.client.Call("Archivist.ItemList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemDescribe returns details for a single item.
func (c *Client) ItemDescribe(id string) (*ItemDescribeResponse, error) {
	var resp ItemDescribeResponse
	req := ItemDescribeRequest{ID: id}
	if err := c.client.Call("Archivist.ItemDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemKick forces an item to be claimed on the next poll.
func (c *Client) ItemKick(id string) (*ItemKickResponse, error) {
	var resp ItemKickResponse
	req := ItemKickRequest{ID: id}
	if err := c.client.Call("Archivist.ItemKick", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryFailed requeues failed items.
func (c *Client) RetryFailed(ids []string) (*RetryFailedResponse, error) {
	var resp RetryFailedResponse
	req := RetryFailedRequest{IDs: ids}
	if err := c.client.Call("Archivist.RetryFailed", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewList returns the open review queue.
func (c *Client) ReviewList() (*ReviewListResponse, error) {
	var resp ReviewListResponse
	if err := c.client.Call("Archivist.ReviewList", ReviewListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewResolve closes a review entry with a decision.
func (c *Client) ReviewResolve(reviewID int64, action, note, resolvedBy string) (*ReviewResolveResponse, error) {
	var resp ReviewResolveResponse
	req := ReviewResolveRequest{ReviewID: reviewID, Action: action, Note: note, ResolvedBy: resolvedBy}
	if err := c.client.Call("Archivist.ReviewResolve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
