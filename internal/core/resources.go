package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ResourceSet owns every media handle acquired for one participant,
// partitioned by kind. Handles are never shared across participants;
// releasing the set is the only way any of them is freed.
type ResourceSet struct {
	mu            sync.Mutex
	transports    map[string]TransportHandle
	producers     map[string]ProducerHandle
	producerOrder []string
	consumers     map[string]ConsumerHandle
}

func NewResourceSet() *ResourceSet {
	return &ResourceSet{
		transports: make(map[string]TransportHandle),
		producers:  make(map[string]ProducerHandle),
		consumers:  make(map[string]ConsumerHandle),
	}
}

func (rs *ResourceSet) PutTransport(t TransportHandle) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.transports[t.ID()] = t
}

func (rs *ResourceSet) Transport(id string) (TransportHandle, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	t, ok := rs.transports[id]
	return t, ok
}

func (rs *ResourceSet) PutProducer(p ProducerHandle) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.producers[p.ID()]; !ok {
		rs.producerOrder = append(rs.producerOrder, p.ID())
	}
	rs.producers[p.ID()] = p
}

// RemoveProducer drops the producer from the set and hands its handle
// back so the caller can close it. Reports whether an entry matched.
func (rs *ResourceSet) RemoveProducer(id string) (ProducerHandle, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	p, ok := rs.producers[id]
	if !ok {
		return nil, false
	}
	delete(rs.producers, id)
	for i, pid := range rs.producerOrder {
		if pid == id {
			rs.producerOrder = append(rs.producerOrder[:i], rs.producerOrder[i+1:]...)
			break
		}
	}
	return p, true
}

// ProducerIDs returns the active producer ids in creation order.
// The result is a copy and never nil.
func (rs *ResourceSet) ProducerIDs() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, len(rs.producerOrder))
	copy(out, rs.producerOrder)
	return out
}

func (rs *ResourceSet) PutConsumer(c ConsumerHandle) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.consumers[c.ID()] = c
}

func (rs *ResourceSet) Consumer(id string) (ConsumerHandle, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	c, ok := rs.consumers[id]
	return c, ok
}

// ReleaseAll closes every owned handle, best effort. Close failures are
// logged and never propagate: a participant leaving must always succeed.
func (rs *ResourceSet) ReleaseAll() {
	rs.mu.Lock()
	consumers := rs.consumers
	producers := rs.producers
	transports := rs.transports
	rs.consumers = make(map[string]ConsumerHandle)
	rs.producers = make(map[string]ProducerHandle)
	rs.producerOrder = nil
	rs.transports = make(map[string]TransportHandle)
	rs.mu.Unlock()

	for id, c := range consumers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.resources").Str("consumer", id).Msg("consumer close failed")
		}
	}
	for id, p := range producers {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.resources").Str("producer", id).Msg("producer close failed")
		}
	}
	for id, t := range transports {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "core.resources").Str("transport", id).Msg("transport close failed")
		}
	}
}
