package redis

import (
	goredis "github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/awardpoll/internal/config"
)

// NewClient does not dial. Connection failures surface on first use, where
// the breakers around the stores take over.
func NewClient(cfg config.Redis) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
