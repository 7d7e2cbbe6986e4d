package incremental

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"pipelined.dev/incremental/internal/state"
)

// edge connects producer with consumer.
type edge struct {
	consumer Module
	options  []EdgeOption
}

// Subscribe wires consumer to producer's output. It fails with
// ErrTypeMismatch if consumer doesn't accept producer's output type.
// Subscribing the same pair again is a no-op. Graph can only be changed
// before the network is started.
func (n *Network) Subscribe(producer, consumer Module, options ...EdgeOption) error {
	release, err := n.state.Hold(state.Created)
	if err != nil {
		return newError(ErrInvalidState, producer, PhaseWiring, Ref{}, err)
	}
	defer release()

	if !accepts(consumer, producer.OutputType()) {
		return newError(ErrTypeMismatch, consumer, PhaseWiring, Ref{},
			fmt.Errorf("%s produces %q, accepted: %v", producer.Name(), producer.OutputType(), consumer.InputTypes()))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.modules[producer.ID()] = producer
	n.modules[consumer.ID()] = consumer
	for _, e := range n.edges[producer.ID()] {
		if e.consumer.ID() == consumer.ID() {
			return nil
		}
	}
	n.edges[producer.ID()] = append(n.edges[producer.ID()], edge{
		consumer: consumer,
		options:  options,
	})
	n.log.WithFields(logrus.Fields{
		"producer": producer.Name(),
		"consumer": consumer.Name(),
	}).Debug("subscribed")
	return nil
}

// Unsubscribe removes the edge between producer and consumer. Absent
// edge is not an error.
func (n *Network) Unsubscribe(producer, consumer Module) error {
	release, err := n.state.Hold(state.Created)
	if err != nil {
		return newError(ErrInvalidState, producer, PhaseWiring, Ref{}, err)
	}
	defer release()

	n.mu.Lock()
	defer n.mu.Unlock()
	edges := n.edges[producer.ID()]
	for i := range edges {
		if edges[i].consumer.ID() == consumer.ID() {
			n.edges[producer.ID()] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return nil
}

// Subscribers returns consumers of the producer in subscription order.
func (n *Network) Subscribers(producer Module) []Module {
	n.mu.Lock()
	defer n.mu.Unlock()
	edges := n.edges[producer.ID()]
	consumers := make([]Module, 0, len(edges))
	for _, e := range edges {
		consumers = append(consumers, e.consumer)
	}
	return consumers
}

// discover returns all modules reachable from roots in breadth-first
// order.
func (n *Network) discover(roots []Module) []Module {
	n.mu.Lock()
	defer n.mu.Unlock()
	visited := make(map[string]struct{})
	var modules []Module
	queue := append([]Module(nil), roots...)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if _, ok := visited[m.ID()]; ok {
			continue
		}
		visited[m.ID()] = struct{}{}
		modules = append(modules, m)
		for _, e := range n.edges[m.ID()] {
			queue = append(queue, e.consumer)
		}
	}
	return modules
}

func accepts(consumer Module, t Type) bool {
	for _, in := range consumer.InputTypes() {
		if in == t {
			return true
		}
	}
	return false
}

// Edge is a subscription between producer and consumer.
type Edge struct {
	Producer Module
	Consumer Module
}

// Edges returns all subscriptions of the network. Edges of every producer
// keep subscription order.
func (n *Network) Edges() []Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	var edges []Edge
	for id, es := range n.edges {
		for _, e := range es {
			edges = append(edges, Edge{
				Producer: n.modules[id],
				Consumer: e.consumer,
			})
		}
	}
	return edges
}
