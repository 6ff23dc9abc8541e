package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := RedisChecker(client)
	if c.Name != "redis" {
		t.Errorf("name = %q, want redis", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() error with live server: %v", err)
	}

	mr.Close()
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() = nil after server shutdown, want error")
	}
}
