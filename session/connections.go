// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"slices"

	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/probe"
)

// member is one pool connection and the peer on its far side.
type member struct {
	conn *pool.Connection
	peer string
	// opened is set once the connection has been reported to the
	// observer, so the close is reported only for reported opens.
	opened bool
}

// connectionSet holds the connections of one direction in creation
// order. It is the probe.Directory probes are routed through.
type connectionSet struct {
	order   []string
	members map[string]*member
}

var _ probe.Directory = (*connectionSet)(nil)

func newConnectionSet() *connectionSet {
	return &connectionSet{members: make(map[string]*member)}
}

func (s *connectionSet) add(conn *pool.Connection, peer string) *member {
	m := &member{conn: conn, peer: peer}
	if _, exists := s.members[conn.Label()]; !exists {
		s.order = append(s.order, conn.Label())
	}
	s.members[conn.Label()] = m
	return m
}

func (s *connectionSet) get(label string) *member {
	return s.members[label]
}

// remove drops the connection with label and returns it, or nil when it
// was not in the set.
func (s *connectionSet) remove(label string) *member {
	m, ok := s.members[label]
	if !ok {
		return nil
	}
	delete(s.members, label)
	if index := slices.Index(s.order, label); index >= 0 {
		s.order = slices.Delete(s.order, index, index+1)
	}
	return m
}

func (s *connectionSet) all() []*member {
	members := make([]*member, 0, len(s.order))
	for _, label := range s.order {
		members = append(members, s.members[label])
	}
	return members
}

func (s *connectionSet) len() int { return len(s.order) }

// transferCount returns the number of live transfer connections.
func (s *connectionSet) transferCount() int {
	count := 0
	for _, m := range s.members {
		if m.conn.Role() == pool.RoleTransfer && !m.conn.Closed() {
			count++
		}
	}
	return count
}

// Endpoints returns the live transfer connections. Shared probe routes
// choose among these.
func (s *connectionSet) Endpoints() []probe.Endpoint {
	var endpoints []probe.Endpoint
	for _, label := range s.order {
		conn := s.members[label].conn
		if conn.Role() == pool.RoleTransfer && !conn.Closed() {
			endpoints = append(endpoints, conn)
		}
	}
	return endpoints
}

// Endpoint returns the live connection with label, of any role.
func (s *connectionSet) Endpoint(label string) probe.Endpoint {
	m, ok := s.members[label]
	if !ok || m.conn.Closed() {
		return nil
	}
	return m.conn
}
