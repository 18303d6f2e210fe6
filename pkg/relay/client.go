package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/blastzone/netplay/pkg/network/websocket"
	"github.com/goccy/go-json"
)

var ErrNotJSON = errors.New("relay data is not JSON")

// Client joins topics of a websocket relay server.
type Client struct {
	url      string
	log      *logger.Logger
	maxRetry time.Duration
}

func NewClient(url string, log *logger.Logger) *Client {
	return &Client{url: url, log: log, maxRetry: 5 * time.Second}
}

// Join dials the server, retrying until ctx ends, and waits for the
// first presence event which carries the key of this member.
func (c *Client) Join(ctx context.Context, topic string, h Handlers) (Channel, error) {
	if topic == "" {
		return nil, ErrBadTopic
	}
	var ws *websocket.WS
	retry := network.NewRetry(c.maxRetry)
	for {
		var err error
		if ws, err = websocket.NewClient(ctx, c.url, c.log); err == nil {
			break
		}
		c.log.Warn().Err(err).Msgf("Relay dial failed, retry in %v", retry.Time())
		if !retry.Fail(ctx) {
			return nil, fmt.Errorf("relay %v: %w", c.url, err)
		}
	}

	ch := &clientChannel{ws: ws, h: h, joined: make(chan string, 1)}
	ws.OnMessage = ch.handle
	ws.OnClose = ch.closed
	ws.Start()

	join, _ := Frame{Op: OpJoin, Topic: topic}.Encode()
	if err := ws.Write(join); err != nil {
		return nil, err
	}
	select {
	case key, ok := <-ch.joined:
		if !ok {
			return nil, fmt.Errorf("relay join: %w", ch.err())
		}
		ch.key = key
		return ch, nil
	case <-ctx.Done():
		ws.Close()
		return nil, ctx.Err()
	}
}

type clientChannel struct {
	ws  *websocket.WS
	h   Handlers
	key string

	joined chan string
	mu     sync.Mutex
	seen   bool
	fail   error
	leave  bool
}

func (c *clientChannel) Key() string { return c.key }

func (c *clientChannel) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		return ErrClosed
	}
	return c.fail
}

func (c *clientChannel) handle(message []byte) {
	f, err := DecodeFrame(message)
	if err != nil {
		return
	}
	switch f.Op {
	case OpPresence:
		c.mu.Lock()
		first := !c.seen
		c.seen = true
		c.mu.Unlock()
		if first {
			c.joined <- f.Key
		}
		if c.h.OnPresence != nil {
			c.h.OnPresence(f.presence())
		}
	case OpMessage:
		if c.h.OnMessage != nil {
			c.h.OnMessage(f.Key, f.Data)
		}
	case OpError:
		c.mu.Lock()
		c.fail = errors.New(f.Error)
		seen := c.seen
		c.mu.Unlock()
		// a refused join ends the connection
		if !seen {
			c.ws.Close()
		}
	}
}

func (c *clientChannel) closed() {
	c.mu.Lock()
	seen, leave, fail := c.seen, c.leave, c.fail
	c.mu.Unlock()
	if !seen {
		close(c.joined)
		return
	}
	if c.h.OnClose == nil {
		return
	}
	if leave {
		c.h.OnClose(nil)
		return
	}
	if fail == nil {
		fail = ErrClosed
	}
	c.h.OnClose(fail)
}

func (c *clientChannel) Publish(data []byte) error {
	if !json.Valid(data) {
		return ErrNotJSON
	}
	f, err := Frame{Op: OpPublish, Data: data}.Encode()
	if err != nil {
		return err
	}
	if err = c.ws.Write(f); errors.Is(err, websocket.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (c *clientChannel) Close() error {
	c.mu.Lock()
	if c.leave {
		c.mu.Unlock()
		return ErrClosed
	}
	c.leave = true
	c.mu.Unlock()
	f, _ := Frame{Op: OpLeave}.Encode()
	_ = c.ws.Write(f)
	c.ws.Close()
	return nil
}
