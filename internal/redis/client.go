package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// RoomChannel is the pubsub channel carrying events for one conversation
// room. Every server instance with a local member subscribes to it.
func RoomChannel(conversationID string) string {
	return fmt.Sprintf("room:%s", conversationID)
}

// BroadcastChannel carries events addressed to every connected client,
// such as presence transitions.
const BroadcastChannel = "broadcast"
