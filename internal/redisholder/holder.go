package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Holder hands out the current Redis client and lets the health loop swap
// in a replacement without anyone holding a stale pointer.
type Holder struct {
	v atomic.Value // stores holderValue
}

// holderValue keeps atomic.Value happy when the reconnect swaps between
// single-node and cluster client types.
type holderValue struct {
	c redis.UniversalClient
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(holderValue{c: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	hv, _ := h.v.Load().(holderValue)
	return hv.c
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	old = h.Get()
	h.v.Store(holderValue{c: newc})
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
