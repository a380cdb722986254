// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bureau-foundation/dctransfer/flow"
)

// ErrNoRoute is returned when no channel can carry a probe.
var ErrNoRoute = errors.New("probe: no channel to send on")

// Endpoint is a connection probes may travel over. *pool.Connection
// implements it.
type Endpoint interface {
	Label() string
	Channels() []*flow.Controller
	FindChannel(label string) *flow.Controller
}

// Directory enumerates the live connections of a session.
type Directory interface {
	Endpoints() []Endpoint
	Endpoint(label string) Endpoint
}

// Route names where probes travel. An empty ConnectionLabel means any
// connection; an empty ChannelLabel means any channel of the chosen
// connection.
type Route struct {
	ConnectionLabel string
	ChannelLabel    string
}

// Shared reports whether the route leaves the choice of connection
// open.
func (r Route) Shared() bool { return r.ConnectionLabel == "" }

// Picker returns a uniformly random index in [0, n).
type Picker func(n int) int

// Router sends probe messages along a route.
type Router struct {
	directory Directory
	route     Route
	pick      Picker
}

// NewRouter returns a router over directory with a shared route.
func NewRouter(directory Directory) *Router {
	return &Router{directory: directory, pick: rand.IntN}
}

// SetRoute replaces the route.
func (r *Router) SetRoute(route Route) { r.route = route }

// Route returns the current route.
func (r *Router) Route() Route { return r.route }

// SetPicker replaces the random choice, for tests.
func (r *Router) SetPicker(pick Picker) { r.pick = pick }

// Channel chooses the channel the next probe goes out on.
func (r *Router) Channel() (*flow.Controller, error) {
	var endpoint Endpoint
	if r.route.ConnectionLabel != "" {
		endpoint = r.directory.Endpoint(r.route.ConnectionLabel)
		if endpoint == nil {
			return nil, fmt.Errorf("%w: connection %s is gone", ErrNoRoute, r.route.ConnectionLabel)
		}
		if r.route.ChannelLabel != "" {
			channel := endpoint.FindChannel(r.route.ChannelLabel)
			if channel == nil {
				return nil, fmt.Errorf("%w: channel %s is gone", ErrNoRoute, r.route.ChannelLabel)
			}
			return channel, nil
		}
	} else {
		endpoints := r.directory.Endpoints()
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("%w: no connections", ErrNoRoute)
		}
		endpoint = endpoints[r.pick(len(endpoints))]
	}

	channels := endpoint.Channels()
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: connection %s has no channels", ErrNoRoute, endpoint.Label())
	}
	return channels[r.pick(len(channels))], nil
}

// Send writes message on the channel chosen by the route.
func (r *Router) Send(message []byte) error {
	channel, err := r.Channel()
	if err != nil {
		return err
	}
	return channel.Send(message)
}
