package redis

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// addWithIncrementScript appends ARGV[1] to the sorted set KEYS[1] with score max+1, so the
// set keeps insertion order, and writes the field/value pairs ARGV[3..] to the hash KEYS[2].
// When KEYS[3] is given it is claimed with SETNX (value ARGV[2]) first.
// Returns 0 without writing anything if the member or the claimed key already exists.
var addWithIncrementScript = redis.NewScript(`
	if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
		return 0
	end
	if #KEYS > 2 and redis.call('SETNX', KEYS[3], ARGV[2]) == 0 then
		return 0
	end
	local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local nextScore = 1
	if #maxScore > 0 then
		nextScore = tonumber(maxScore[2]) + 1
	end
	redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
	if #ARGV > 2 then
		redis.call('HSET', KEYS[2], unpack(ARGV, 3))
	end
	return nextScore
`)

// expireRoomScript sets (ARGV[1] ms) or removes (ARGV[1] == "-1") the expiry of every
// key belonging to the room whose key prefix is ARGV[2], chat history included.
var expireRoomScript = redis.NewScript(`
	local ttl = ARGV[1]
	local prefix = ARGV[2]
	local keys = {prefix, prefix .. ':video-state', prefix .. ':participants', prefix .. ':playlist', prefix .. ':messages'}
	for _, id in ipairs(redis.call('ZRANGE', prefix .. ':playlist', 0, -1)) do
		keys[#keys + 1] = prefix .. ':video:' .. id
	end
	for _, id in ipairs(redis.call('ZRANGE', prefix .. ':participants', 0, -1)) do
		keys[#keys + 1] = prefix .. ':participant:' .. id
		keys[#keys + 1] = 'participant:' .. id .. ':room'
	end
	for _, key in ipairs(keys) do
		if ttl == '-1' then
			redis.call('PERSIST', key)
		else
			redis.call('PEXPIRE', key, ttl)
		end
	end
	return #keys
`)

type repo struct {
	rc     *redis.Client
	logger *slog.Logger
}

func NewRepo(rc *redis.Client, logger *slog.Logger) *repo {
	return &repo{
		rc:     rc,
		logger: logger,
	}
}
