package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	roomKeyPrefix     = "ww:room:"
	roomChannelPrefix = "ww:room-events:"

	// 删除房间时发布的终止信号
	deletedSentinel = "__room_deleted__"

	// 房间键的兜底过期时间，防止异常退出后残留文档
	roomTTL = 6 * time.Hour
)

// RedisStore 把房间文档存为一个 JSON 快照键，
// 每次变更通过对应的 pub/sub 频道推送完整快照
type RedisStore struct {
	rdb *redis.Client
	ctx context.Context
}

func NewRedisStore(addr string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", addr, err)
	}

	return &RedisStore{
		rdb: rdb,
		ctx: context.Background(),
	}, nil
}

func (rs *RedisStore) Get(code string) (Document, error) {
	data, err := rs.rdb.Get(rs.ctx, roomKeyPrefix+code).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取房间 %s 失败: %w", code, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析房间 %s 文档失败: %w", code, err)
	}

	return doc, nil
}

func (rs *RedisStore) Put(code string, doc any) error {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return err
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("序列化房间 %s 文档失败: %w", code, err)
	}

	ok, err := rs.rdb.SetNX(rs.ctx, roomKeyPrefix+code, data, roomTTL).Result()
	if err != nil {
		return fmt.Errorf("写入房间 %s 失败: %w", code, err)
	}
	if !ok {
		return ErrRoomExists
	}

	rs.publish(code, data)

	return nil
}

// Patch 读出快照、应用批次、整体写回并发布
// 每个房间只有其状态机这一个写者，读改写在这里是安全的
func (rs *RedisStore) Patch(code string, fields map[string]any) error {
	doc, err := rs.Get(code)
	if err != nil {
		return err
	}

	if err := applyPatch(doc, fields); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化房间 %s 文档失败: %w", code, err)
	}

	if err := rs.rdb.Set(rs.ctx, roomKeyPrefix+code, data, roomTTL).Err(); err != nil {
		return fmt.Errorf("写入房间 %s 失败: %w", code, err)
	}

	rs.publish(code, data)

	return nil
}

func (rs *RedisStore) Delete(code string) error {
	deleted, err := rs.rdb.Del(rs.ctx, roomKeyPrefix+code).Result()
	if err != nil {
		return fmt.Errorf("删除房间 %s 失败: %w", code, err)
	}
	if deleted == 0 {
		return ErrRoomNotFound
	}

	rs.publish(code, []byte(deletedSentinel))

	return nil
}

func (rs *RedisStore) Subscribe(code string) (<-chan Document, func(), error) {
	if _, err := rs.Get(code); err != nil {
		return nil, nil, err
	}

	pubsub := rs.rdb.Subscribe(rs.ctx, roomChannelPrefix+code)

	// 确认订阅已建立，避免漏掉紧随其后的变更
	if _, err := pubsub.Receive(rs.ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("订阅房间 %s 失败: %w", code, err)
	}

	ch := make(chan Document, 16)

	go func() {
		defer close(ch)

		for msg := range pubsub.Channel() {
			if msg.Payload == deletedSentinel {
				return
			}

			var doc Document
			if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
				zap.S().Errorf("解析房间 %s 快照失败: %v", code, err)
				continue
			}

			select {
			case ch <- doc:
			default:
				// 丢弃最旧的快照，保证收敛到最新状态
				select {
				case <-ch:
				default:
				}

				select {
				case ch <- doc:
				default:
				}
			}
		}
	}()

	cancel := func() {
		pubsub.Close()
	}

	return ch, cancel, nil
}

func (rs *RedisStore) publish(code string, data []byte) {
	if err := rs.rdb.Publish(rs.ctx, roomChannelPrefix+code, data).Err(); err != nil {
		zap.S().Errorf("发布房间 %s 变更失败: %v", code, err)
	}
}
