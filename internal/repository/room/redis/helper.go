package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/room"
)

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

type addWithIncrementParams struct {
	SetKey     string
	HashKey    string
	IndexKey   string
	Member     string
	IndexValue string
	Fields     []any
}

// addWithIncrement reports false when the member (or the index key) already exists.
func (r repo) addWithIncrement(ctx context.Context, params *addWithIncrementParams) (bool, error) {
	keys := []string{params.SetKey, params.HashKey}
	if params.IndexKey != "" {
		keys = append(keys, params.IndexKey)
	}

	args := make([]any, 0, len(params.Fields)+2)
	args = append(args, params.Member, params.IndexValue)
	args = append(args, params.Fields...)

	res, err := addWithIncrementScript.Run(ctx, r.rc, keys, args...).Int64()
	if err != nil {
		return false, err
	}

	return res > 0, nil
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

// checkRoomExists returns room.ErrRoomNotFound when the room marker key is missing.
func (r repo) checkRoomExists(ctx context.Context, roomId string) error {
	n, err := r.rc.Exists(ctx, r.getRoomKey(roomId)).Result()
	if err != nil {
		return fmt.Errorf("failed to check room exists: %w", err)
	}

	if n == 0 {
		return room.ErrRoomNotFound
	}

	return nil
}
