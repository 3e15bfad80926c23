package configure // 설정 관련 패키지

/*
	각 채널은 고유한 스트림 키를 가지며, 이 매핑은 로컬이나 redis 에 저장된다.
	인제스트는 키로, 재생은 채널 이름으로 접근한다.
	redis 환경에서는 여러 인스턴스가 동일한 매핑을 공유할 수 있다.
	로컬 환경에서는 단일 인스턴스에 대해서만 작동한다.
*/
import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/utils/uid"

	"github.com/go-redis/redis/v7"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

const keyLen = 48

var ErrKeyNotFound = fmt.Errorf("stream key does not exist")

// StreamKeysType 는 채널 <-> 스트림 키 양방향 매핑이다.
type StreamKeysType struct {
	redisCli   *redis.Client // nil 이면 로컬 캐시를 쓴다
	localCache *cache.Cache
}

var StreamKeys = NewLocalStreamKeys()

func NewLocalStreamKeys() *StreamKeysType {
	return &StreamKeysType{
		localCache: cache.New(cache.NoExpiration, 0),
	}
}

// InitStreamKeys 는 redis_addr 가 설정되어 있으면 StreamKeys 를 redis 로 바꾼다.
func InitStreamKeys() error {
	addr := Config.GetString("redis_addr")
	if len(addr) == 0 {
		return nil
	}

	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: Config.GetString("redis_pwd"),
		DB:       0,
	})
	if _, err := cli.Ping().Result(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	StreamKeys = &StreamKeysType{redisCli: cli}
	log.Info("Redis connected")
	return nil
}

// 채널을 위한 랜덤 키를 설정한다. 양방향 매핑으로 서로를 찾을 수 있게한다.
// set/reset a random key for channel
func (r *StreamKeysType) SetKey(channel string) (key string, err error) {
	if r.redisCli != nil {
		for {
			key = uid.RandStringRunes(keyLen)
			// 존재하지 않는 키를 찾을 때까지 반복한다.
			if _, err = r.redisCli.Get(key).Result(); err == redis.Nil {
				if old, err := r.redisCli.Get(channel).Result(); err == nil {
					r.redisCli.Del(old)
				}
				if err = r.redisCli.Set(channel, key, 0).Err(); err != nil {
					return
				}
				err = r.redisCli.Set(key, channel, 0).Err()
				return
			} else if err != nil {
				return
			}
		}
	}

	for {
		key = uid.RandStringRunes(keyLen)
		if _, found := r.localCache.Get(key); !found {
			// 이전 키로는 더 이상 인제스트할 수 없다.
			if old, ok := r.localCache.Get(channel); ok {
				r.localCache.Delete(old.(string))
			}
			r.localCache.SetDefault(channel, key)
			r.localCache.SetDefault(key, channel)
			break
		}
	}
	return
}

// 채널에 대한 키를 검색한다. 없으면 만든다.
func (r *StreamKeysType) GetKey(channel string) (newKey string, err error) {
	if r.redisCli != nil {
		if newKey, err = r.redisCli.Get(channel).Result(); err == redis.Nil {
			newKey, err = r.SetKey(channel)
			log.Debugf("[KEY] new channel [%s]: %s", channel, newKey)
		}
		return
	}

	if key, found := r.localCache.Get(channel); found {
		return key.(string), nil
	}
	newKey, err = r.SetKey(channel)
	log.Debugf("[KEY] new channel [%s]: %s", channel, newKey)
	return
}

// GetChannel 은 키에서 채널 이름을 찾는다.
func (r *StreamKeysType) GetChannel(key string) (channel string, err error) {
	if r.redisCli != nil {
		channel, err = r.redisCli.Get(key).Result()
		if err == redis.Nil {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return
	}

	chann, found := r.localCache.Get(key)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return chann.(string), nil
}

// 채널과 그 키를 삭제한다.
func (r *StreamKeysType) DeleteChannel(channel string) bool {
	if r.redisCli != nil {
		key, err := r.redisCli.Get(channel).Result()
		if err != nil {
			return false
		}
		return r.redisCli.Del(channel, key).Err() == nil
	}

	key, ok := r.localCache.Get(channel)
	if ok {
		r.localCache.Delete(channel)
		r.localCache.Delete(key.(string))
		return true
	}
	return false
}

// 키와 그 채널을 삭제한다.
func (r *StreamKeysType) DeleteKey(key string) bool {
	if r.redisCli != nil {
		channel, err := r.redisCli.Get(key).Result()
		if err != nil {
			return false
		}
		return r.redisCli.Del(channel, key).Err() == nil
	}

	channel, ok := r.localCache.Get(key)
	if ok {
		r.localCache.Delete(channel.(string))
		r.localCache.Delete(key)
		return true
	}
	return false
}
