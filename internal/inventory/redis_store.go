package inventory

import (
	"context"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const seatStateKeyPrefix = "seat_state:"

// transitionScript checks and applies a group transition in one server-side
// step. Values are "<state>:<token>:<deadline ms>"; an absent field is free,
// and a held value past its deadline counts as free.
var transitionScript = redis.NewScript(`
	local key = KEYS[1]
	local from = ARGV[1]
	local to = ARGV[2]
	local token = ARGV[3]
	local deadline = ARGV[4]
	local now_ms = tonumber(ARGV[5])

	local function current(seat)
		local v = redis.call('HGET', key, seat)
		if not v then
			return 'free', ''
		end
		local state, owner, until_ms = string.match(v, '^(%a+):([^:]*):(%d+)$')
		if not state then
			return 'corrupt', ''
		end
		local expiry = tonumber(until_ms)
		if state == 'held' and expiry > 0 and expiry <= now_ms then
			return 'free', ''
		end
		return state, owner
	end

	local conflicts = {}
	for i = 6, #ARGV do
		local state, owner = current(ARGV[i])
		if state ~= from or (from ~= 'free' and owner ~= token) then
			table.insert(conflicts, ARGV[i])
		end
	end
	if #conflicts > 0 then
		return conflicts
	end

	for i = 6, #ARGV do
		if to == 'free' then
			redis.call('HDEL', key, ARGV[i])
		else
			redis.call('HSET', key, ARGV[i], to .. ':' .. token .. ':' .. deadline)
		end
	end
	return conflicts
`)

// RedisStore keeps seat states in one Redis hash per screening so several
// service instances share them and they survive restarts.
type RedisStore struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedisStore(client *redis.Client, log *logger.Logger) *RedisStore {
	return &RedisStore{Client: client, Logger: log}
}

func seatStateKey(screeningID string) string {
	return seatStateKeyPrefix + screeningID
}

func (r *RedisStore) Snapshot(ctx context.Context, screeningID string, now time.Time) (map[string]SeatRecord, error) {
	raw, err := r.Client.HGetAll(ctx, seatStateKey(screeningID)).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]SeatRecord, len(raw))
	for seatID, value := range raw {
		rec, err := parseSeatRecord(value)
		if err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Ignoring seat %s of %s: %v", seatID, screeningID, err))
			continue
		}
		if rec = rec.effective(now); rec.State != models.SeatFree {
			out[seatID] = rec
		}
	}
	return out, nil
}

func (r *RedisStore) Transition(ctx context.Context, screeningID string, seatIDs []string, from, to models.SeatState, token string, deadline, now time.Time) ([]string, error) {
	args := make([]interface{}, 0, len(seatIDs)+5)
	args = append(args, string(from), string(to), token, deadlineMillis(deadline), now.UnixMilli())
	for _, id := range seatIDs {
		args = append(args, id)
	}

	res, err := transitionScript.Run(ctx, r.Client, []string{seatStateKey(screeningID)}, args...).Result()
	if err != nil {
		return nil, err
	}

	items, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result %T", res)
	}
	var conflicts []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			conflicts = append(conflicts, s)
		}
	}
	if len(conflicts) > 0 {
		r.Logger.Debug("REDIS", fmt.Sprintf("Transition %s->%s on %s rejected for %v", from, to, screeningID, conflicts))
	}
	return conflicts, nil
}

func deadlineMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func parseSeatRecord(value string) (SeatRecord, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return SeatRecord{}, fmt.Errorf("malformed seat state %q", value)
	}
	state := models.SeatState(parts[0])
	if !state.Valid() {
		return SeatRecord{}, fmt.Errorf("unknown seat state %q", parts[0])
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return SeatRecord{}, fmt.Errorf("malformed deadline %q", parts[2])
	}
	rec := SeatRecord{State: state, Token: parts[1]}
	if ms > 0 {
		rec.Deadline = time.UnixMilli(ms)
	}
	return rec, nil
}
