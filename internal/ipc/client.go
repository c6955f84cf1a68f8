package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the recorder.
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
		return c.client.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the recorder status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Trigger fires a manual trigger.
func (c *Client) Trigger() (*TriggerResponse, error) {
	return call[TriggerRequest, TriggerResponse](c, "Trigger", TriggerRequest{})
}

// Events lists the most recent journaled events.
func (c *Client) Events(limit int) (*EventsResponse, error) {
	return call[EventsRequest, EventsResponse](c, "Events", EventsRequest{Limit: limit})
}

// LogTail returns log lines from the recorder's current log file.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// TestNotification sends a test notification through the recorder.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
