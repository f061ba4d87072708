package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisStoreGetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectGet("keyflip:cache:fp").SetVal("body")

	body, ok := store.Get(context.Background(), "fp")
	assert.True(t, ok)
	assert.Equal(t, []byte("body"), body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectGet("keyflip:cache:fp").RedisNil()

	_, ok := store.Get(context.Background(), "fp")
	assert.False(t, ok)
}

func TestRedisStoreErrorDegradesToMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectGet("keyflip:cache:fp").SetErr(assert.AnError)

	_, ok := store.Get(context.Background(), "fp")
	assert.False(t, ok)
}

func TestRedisStorePut(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	mock.ExpectSet("keyflip:cache:fp", []byte("body"), time.Minute).SetVal("OK")

	store.Put(context.Background(), "fp", []byte("body"), time.Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}
