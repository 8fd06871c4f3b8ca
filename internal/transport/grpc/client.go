package grpcx

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RoomItem: строка ListRooms для CLI.
type RoomItem struct {
	ID         string
	Active     int
	Waiting    int
	Recording  bool
	CreatedAt  string
	EmptySince string
}

type Options struct {
	Target  string
	Timeout time.Duration
	Token   string

	// DialOptions заменяют insecure credentials (тесты: bufconn dialer)
	DialOptions []grpc.DialOption
}

type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	token   string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("admin client: empty target")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dialOpts := opts.DialOptions
	if len(dialOpts) == 0 {
		dialOpts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(opts.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("admin client: new client failed: %w", err)
	}
	return &Client{conn: conn, timeout: opts.Timeout, token: opts.Token}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) rpcCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, mdAuthorization, "Bearer "+c.token)
	}
	return ctx, cancel
}

func (c *Client) ListRooms(ctx context.Context) ([]RoomItem, error) {
	rpcCtx, cancel := c.rpcCtx(ctx)
	defer cancel()

	out := new(structpb.ListValue)
	if err := c.conn.Invoke(rpcCtx, methodListRooms, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	items := make([]RoomItem, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		f := v.GetStructValue().GetFields()
		items = append(items, RoomItem{
			ID:         f["id"].GetStringValue(),
			Active:     int(f["active"].GetNumberValue()),
			Waiting:    int(f["waiting"].GetNumberValue()),
			Recording:  f["recording"].GetBoolValue(),
			CreatedAt:  f["createdAt"].GetStringValue(),
			EmptySince: f["emptySince"].GetStringValue(),
		})
	}
	return items, nil
}

// GetRoom возвращает снапшот как map (вложенные participants/waiting: []any).
func (c *Client) GetRoom(ctx context.Context, id string) (map[string]any, error) {
	rpcCtx, cancel := c.rpcCtx(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(rpcCtx, methodGetRoom, wrapperspb.String(id), out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) CloseRoom(ctx context.Context, id string) error {
	rpcCtx, cancel := c.rpcCtx(ctx)
	defer cancel()

	return c.conn.Invoke(rpcCtx, methodCloseRoom, wrapperspb.String(id), &emptypb.Empty{})
}
